package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrOutputExists indicates the output file already exists.
	ErrOutputExists = errors.New("output file already exists")

	// ErrInvalidParallel indicates a --parallel value outside 0-10.
	ErrInvalidParallel = errors.New("invalid parallel value")

	// ErrCancelled indicates the job was stopped by the user. Its checkpoint
	// is kept, so running the same command again resumes it.
	ErrCancelled = errors.New("cancelled")
)
