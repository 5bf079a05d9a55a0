package ffmpeg

import (
	"bytes"
	"context"
	"io"
	"os/exec"
)

// runFn executes a binary with optional stdin/stdout streams and returns
// whatever it wrote to stderr. ffmpeg writes diagnostics (Duration:, time=)
// to stderr, so it is captured even on failure.
type runFn func(ctx context.Context, bin string, args []string, stdin io.Reader, stdout io.Writer) (string, error)

func defaultRun(ctx context.Context, bin string, args []string, stdin io.Reader, stdout io.Writer) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- args are built internally
	cmd.Stdin = stdin
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.String(), err
}

// tail keeps the last n bytes of ffmpeg output for error messages.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
