package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/alnah/go-chunkscribe/internal/checkpoint"
	"github.com/alnah/go-chunkscribe/internal/config"
	"github.com/alnah/go-chunkscribe/internal/ffmpeg"
	"github.com/alnah/go-chunkscribe/internal/interrupt"
	"github.com/alnah/go-chunkscribe/internal/logging"
	"github.com/alnah/go-chunkscribe/internal/pipeline"
	"github.com/alnah/go-chunkscribe/internal/provider"
	"github.com/alnah/go-chunkscribe/internal/transcribe"
)

// checkpointsDir is the FileStore directory under the cache dir.
const checkpointsDir = "checkpoints"

// jobsDir holds the chunk files of running jobs under the cache dir.
const jobsDir = "jobs"

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Factories for domain objects
	FFmpegResolver    FFmpegResolver
	ConfigLoader      ConfigLoader
	ComponentsFactory ComponentsFactory
	ProviderFactory   ProviderFactory
	StoreFactory      StoreFactory
	InterruptFactory  InterruptFactory
}

// FFmpegResolver locates the ffmpeg and ffprobe binaries.
type FFmpegResolver interface {
	Resolve(ctx context.Context) (ffmpeg.Paths, error)
}

// ConfigLoader loads and provides access to configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// ComponentsFactory builds the transcoding stages of the pipeline.
type ComponentsFactory interface {
	NewComponents(ctx context.Context, paths ffmpeg.Paths, log zerolog.Logger) (pipeline.Components, error)
}

// ProviderFactory creates transcription providers.
type ProviderFactory interface {
	NewProvider(p provider.Provider, apiKey string) (transcribe.Provider, error)
}

// StoreFactory opens the checkpoint store selected by the configuration.
// The returned close function is never nil.
type StoreFactory interface {
	NewStore(ctx context.Context, cfg config.Config) (checkpoint.Store, func() error, error)
}

// InterruptHandler reports what the user asked for with Ctrl+C.
type InterruptHandler interface {
	State() interrupt.Behavior
	Stop()
}

// InterruptFactory installs the Ctrl+C handler for a running job.
type InterruptFactory interface {
	NewHandler(s interrupt.Stopper, stderr io.Writer) InterruptHandler
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdout = w
	}
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) {
		e.FFmpegResolver = r
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithComponentsFactory sets the pipeline components factory.
func WithComponentsFactory(f ComponentsFactory) EnvOption {
	return func(e *Env) {
		e.ComponentsFactory = f
	}
}

// WithProviderFactory sets the provider factory.
func WithProviderFactory(f ProviderFactory) EnvOption {
	return func(e *Env) {
		e.ProviderFactory = f
	}
}

// WithStoreFactory sets the checkpoint store factory.
func WithStoreFactory(f StoreFactory) EnvOption {
	return func(e *Env) {
		e.StoreFactory = f
	}
}

// WithInterruptFactory sets the interrupt handler factory.
func WithInterruptFactory(f InterruptFactory) EnvOption {
	return func(e *Env) {
		e.InterruptFactory = f
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
		Getenv:            os.Getenv,
		Now:               time.Now,
		FFmpegResolver:    ffmpeg.NewResolver(),
		ConfigLoader:      &defaultConfigLoader{},
		ComponentsFactory: &defaultComponentsFactory{},
		ProviderFactory:   &defaultProviderFactory{},
		StoreFactory:      &defaultStoreFactory{},
		InterruptFactory:  &defaultInterruptFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultConfigLoader implements ConfigLoader using the config package.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

// defaultComponentsFactory builds the components on one shared ffmpeg Engine.
type defaultComponentsFactory struct{}

func (defaultComponentsFactory) NewComponents(ctx context.Context, paths ffmpeg.Paths, log zerolog.Logger) (pipeline.Components, error) {
	engine := ffmpeg.NewEngine(paths, ffmpeg.WithLogger(logging.Component(log, "ffmpeg")))
	if _, ok := engine.CheckVersion(ctx); !ok {
		log.Warn().Str("ffmpeg", paths.FFmpeg).Msg("could not determine ffmpeg version")
	}
	return pipeline.NewComponents(engine, log), nil
}

// defaultProviderFactory implements ProviderFactory using the transcribe package.
type defaultProviderFactory struct{}

func (defaultProviderFactory) NewProvider(p provider.Provider, apiKey string) (transcribe.Provider, error) {
	return transcribe.New(p, apiKey)
}

// defaultStoreFactory uses Redis when redis-url is set and JSON files under
// the cache dir otherwise.
type defaultStoreFactory struct{}

func (defaultStoreFactory) NewStore(ctx context.Context, cfg config.Config) (checkpoint.Store, func() error, error) {
	if cfg.RedisURL != "" {
		rdb, err := checkpoint.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("checkpoint store: %w", err)
		}
		return checkpoint.NewRedisStore(rdb), rdb.Close, nil
	}
	dir := cfg.CacheDir
	if dir == "" {
		dir = config.DefaultCacheDir()
	}
	return checkpoint.NewFileStore(filepath.Join(dir, checkpointsDir)), func() error { return nil }, nil
}

// defaultInterruptFactory listens for SIGINT/SIGTERM.
type defaultInterruptFactory struct{}

func (defaultInterruptFactory) NewHandler(s interrupt.Stopper, stderr io.Writer) InterruptHandler {
	return interrupt.NewHandler(s, stderr)
}

// Compile-time interface verification.
var (
	_ FFmpegResolver    = (*ffmpeg.Resolver)(nil)
	_ ConfigLoader      = (*defaultConfigLoader)(nil)
	_ ComponentsFactory = (*defaultComponentsFactory)(nil)
	_ ProviderFactory   = (*defaultProviderFactory)(nil)
	_ StoreFactory      = (*defaultStoreFactory)(nil)
	_ InterruptFactory  = (*defaultInterruptFactory)(nil)
	_ InterruptHandler  = (*interrupt.Handler)(nil)
	_ interrupt.Stopper = (*pipeline.Token)(nil)
)
