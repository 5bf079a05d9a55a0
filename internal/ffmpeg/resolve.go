package ffmpeg

import (
	"context"
	"fmt"
	"runtime"
)

// Environment variables overriding binary lookup.
const (
	envFFmpegPath  = "FFMPEG_PATH"
	envFFprobePath = "FFPROBE_PATH"
)

// Paths holds the resolved engine binaries. FFprobe may be empty.
type Paths struct {
	FFmpeg  string
	FFprobe string
}

// Resolver locates ffmpeg and ffprobe.
type Resolver struct {
	stat fileStatter
	env  envProvider
	goos string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFileStatter sets the stat implementation.
func WithFileStatter(s fileStatter) ResolverOption {
	return func(r *Resolver) { r.stat = s }
}

// WithEnvProvider sets the environment provider.
func WithEnvProvider(e envProvider) ResolverOption {
	return func(r *Resolver) { r.env = e }
}

// WithGOOS overrides the target OS (for testing install hints).
func WithGOOS(goos string) ResolverOption {
	return func(r *Resolver) { r.goos = goos }
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		stat: osFS{},
		env:  osEnvProvider{},
		goos: runtime.GOOS,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds the binaries using the following precedence:
//  1. FFMPEG_PATH / FFPROBE_PATH (error if set but missing)
//  2. System PATH
//
// A missing ffmpeg is an error. A missing ffprobe is not: Paths.FFprobe
// is left empty and probing falls back to ffmpeg.
func (r *Resolver) Resolve(ctx context.Context) (Paths, error) {
	if err := ctx.Err(); err != nil {
		return Paths{}, err
	}

	ffmpegPath, err := r.lookup(envFFmpegPath, "ffmpeg")
	if err != nil {
		return Paths{}, err
	}
	if ffmpegPath == "" {
		return Paths{}, fmt.Errorf("%w in PATH\n\n%s", ErrNotFound, r.installInstructions())
	}

	ffprobePath, err := r.lookup(envFFprobePath, "ffprobe")
	if err != nil {
		return Paths{}, err
	}
	return Paths{FFmpeg: ffmpegPath, FFprobe: ffprobePath}, nil
}

// lookup returns "" with a nil error when the binary is simply absent.
func (r *Resolver) lookup(envKey, name string) (string, error) {
	if p := r.env.Getenv(envKey); p != "" {
		if _, err := r.stat.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s is set to %q but binary not found", ErrNotFound, envKey, p)
		}
		return p, nil
	}
	if p, err := r.env.LookPath(name); err == nil {
		return p, nil
	}
	return "", nil
}

func (r *Resolver) installInstructions() string {
	switch r.goos {
	case "darwin":
		return "Install with: brew install ffmpeg\nOr set FFMPEG_PATH to the binary."
	case "windows":
		return "Install with: winget install ffmpeg\nOr set FFMPEG_PATH to ffmpeg.exe."
	default:
		return "Install with your package manager (apt install ffmpeg, dnf install ffmpeg)\nOr set FFMPEG_PATH to the binary."
	}
}
