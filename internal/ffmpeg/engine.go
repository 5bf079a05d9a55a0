// Package ffmpeg locates the ffmpeg/ffprobe binaries and runs them through a
// single process-wide Engine.
//
// Every piece of engine work happens inside a Session: a private temporary
// workspace that is created, used and torn down while the Engine mutex is
// held. Sessions never overlap, so intermediate files from one operation are
// never visible to another.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// workspacePrefix names session directories under the temp root.
const workspacePrefix = "chunkscribe-"

// minMajorVersion is the oldest ffmpeg release known to work.
const minMajorVersion = 4

// stderrTail bounds the ffmpeg output quoted in errors.
const stderrTail = 2048

// Engine is the shared transcoding handle. Create it once and pass it down.
type Engine struct {
	mu       sync.Mutex
	paths    Paths
	run      runFn
	fs       workspaceFS
	tempRoot string
	log      zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRunner replaces process execution (for testing).
func WithRunner(fn runFn) EngineOption {
	return func(e *Engine) { e.run = fn }
}

// WithWorkspaceFS replaces workspace filesystem calls (for testing).
func WithWorkspaceFS(fs workspaceFS) EngineOption {
	return func(e *Engine) { e.fs = fs }
}

// WithTempRoot sets where session workspaces are created.
func WithTempRoot(dir string) EngineOption {
	return func(e *Engine) { e.tempRoot = dir }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an Engine for the resolved binaries.
func NewEngine(paths Paths, opts ...EngineOption) *Engine {
	e := &Engine{
		paths: paths,
		run:   defaultRun,
		fs:    osFS{},
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "ffmpeg").Logger()
	return e
}

// Session runs fn inside a fresh workspace while holding the engine lock.
// The workspace is deleted when fn returns; results that must outlive it
// have to be moved out with Session.Keep first.
func (e *Engine) Session(ctx context.Context, fn func(*Session) error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := e.fs.MkdirTemp(e.tempRoot, workspacePrefix+"*")
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if rmErr := e.fs.RemoveAll(dir); rmErr != nil {
			e.log.Warn().Err(rmErr).Str("dir", dir).Msg("workspace cleanup failed")
		}
	}()

	return fn(&Session{engine: e, dir: dir})
}

// CheckVersion parses `ffmpeg -version` and logs a warning when the major
// version is below the supported minimum. It returns the major version and
// whether parsing succeeded.
func (e *Engine) CheckVersion(ctx context.Context) (int, bool) {
	var out bytes.Buffer
	stderr, err := e.run(ctx, e.paths.FFmpeg, []string{"-version"}, nil, &out)
	text := out.String()
	if text == "" {
		text = stderr
	}
	if err != nil && text == "" {
		return 0, false
	}

	first, _, _ := strings.Cut(text, "\n")
	var major int
	if _, err := fmt.Sscanf(first, "ffmpeg version %d", &major); err != nil {
		if _, err := fmt.Sscanf(first, "ffmpeg version n%d", &major); err != nil {
			return 0, false
		}
	}
	if major < minMajorVersion {
		e.log.Warn().Int("major", major).Int("min", minMajorVersion).Msg("ffmpeg version below supported minimum")
	}
	return major, true
}

// Session is a scoped workspace on an Engine. Its methods are only valid
// inside the Session callback.
type Session struct {
	engine *Engine
	dir    string
}

// Dir returns the workspace directory.
func (s *Session) Dir() string { return s.dir }

// Path returns name joined to the workspace directory.
func (s *Session) Path(name string) string { return filepath.Join(s.dir, name) }

// Run executes ffmpeg and returns its stderr. A non-zero exit wraps
// ErrTranscode unless ctx was canceled, in which case ctx.Err() is returned.
func (s *Session) Run(ctx context.Context, args ...string) (string, error) {
	return s.Pipe(ctx, nil, nil, args...)
}

// Pipe is Run with stdin/stdout attached (for pipe:0 / pipe:1 arguments).
func (s *Session) Pipe(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) (string, error) {
	full := []string{"-hide_banner", "-y"}
	if stdin == nil {
		full = append(full, "-nostdin")
	}
	full = append(full, args...)
	s.engine.log.Debug().Strs("args", full).Msg("ffmpeg")

	stderr, err := s.engine.run(ctx, s.engine.paths.FFmpeg, full, stdin, stdout)
	if err != nil {
		if ctx.Err() != nil {
			return stderr, ctx.Err()
		}
		return stderr, fmt.Errorf("%w: %v\n%s", ErrTranscode, err, tail(stderr, stderrTail))
	}
	return stderr, nil
}

// Inspect runs ffmpeg for its diagnostic output only. The exit status is
// returned but not classified, since `ffmpeg -i` without an output always
// exits non-zero.
func (s *Session) Inspect(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-hide_banner", "-nostdin"}, args...)
	s.engine.log.Debug().Strs("args", full).Msg("ffmpeg inspect")
	return s.engine.run(ctx, s.engine.paths.FFmpeg, full, nil, nil)
}

// Probe runs ffprobe and returns its stdout.
func (s *Session) Probe(ctx context.Context, args ...string) ([]byte, error) {
	if s.engine.paths.FFprobe == "" {
		return nil, ErrProbeUnavailable
	}
	s.engine.log.Debug().Strs("args", args).Msg("ffprobe")

	var out bytes.Buffer
	stderr, err := s.engine.run(ctx, s.engine.paths.FFprobe, args, nil, &out)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe: %w\n%s", err, tail(stderr, stderrTail))
	}
	return out.Bytes(), nil
}

// Keep moves a workspace file to dest so it survives teardown.
// Cross-device moves fall back to copy and remove.
func (s *Session) Keep(name, dest string) error {
	src := s.Path(name)
	if err := s.engine.fs.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	err := s.engine.fs.Rename(src, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return fmt.Errorf("keep %s: %w", name, err)
	}
	if cpErr := copyFile(src, dest); cpErr != nil {
		return fmt.Errorf("keep %s: %w", name, cpErr)
	}
	return nil
}

func copyFile(src, dest string) (err error) {
	in, err := os.Open(src) // #nosec G304 -- src is inside our workspace
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dest) // #nosec G304 -- dest is built internally
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
