package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alnah/go-chunkscribe/internal/checkpoint"
	"github.com/alnah/go-chunkscribe/internal/config"
	"github.com/alnah/go-chunkscribe/internal/format"
	"github.com/alnah/go-chunkscribe/internal/lang"
	"github.com/alnah/go-chunkscribe/internal/logging"
	"github.com/alnah/go-chunkscribe/internal/media"
	"github.com/alnah/go-chunkscribe/internal/metrics"
	"github.com/alnah/go-chunkscribe/internal/pipeline"
	"github.com/alnah/go-chunkscribe/internal/provider"
	"github.com/alnah/go-chunkscribe/internal/transcribe"
)

// transcribeOptions holds the transcribe flags. Zero values defer to the
// configuration file.
type transcribeOptions struct {
	output      string
	provider    string
	language    string
	parallel    int
	metricsFile string
	noResume    bool
	logLevel    string
}

// settings is the validated merge of flags and configuration.
type settings struct {
	provider provider.Provider
	language string
	parallel int
	logLevel string
}

// TranscribeCmd creates the transcribe command.
// The env parameter provides injectable dependencies for testing.
func TranscribeCmd(env *Env) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <media-file>",
		Short: "Transcribe an audio or video file",
		Long: `Transcribe an audio or video file of any length.

The file is probed and a plan is chosen for the provider: send it as is,
compress it, extract the audio track, or cut it into overlapping chunks.
Chunks are transcribed and merged on one timeline with overlaps removed.

Progress is checkpointed. If the run fails or is interrupted, running the
same command again resumes where it stopped. Press Ctrl+C once to finish
in-flight chunks and stop, twice to abort.

Providers: gemini, groq, openai (API key from GEMINI_API_KEY, GROQ_API_KEY
or OPENAI_API_KEY).`,
		Example: `  chunkscribe transcribe meeting.m4a
  chunkscribe transcribe lecture.mp4 --provider gemini -l fr -o notes.md
  chunkscribe transcribe podcast.mp3 --provider groq --metrics-file job.prom
  chunkscribe transcribe meeting.m4a --no-resume --log-level debug`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd.Context(), env, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file path (default: <input>.md)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Transcription provider: gemini, groq, openai (default: openai)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Audio language (BCP 47, e.g., en, fr, pt-BR)")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 0, "Max concurrent API requests (1-10, default: provider limit)")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write job metrics in Prometheus textfile format")
	cmd.Flags().BoolVar(&opts.noResume, "no-resume", false, "Ignore any checkpoint and start over")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error, disabled")

	return cmd
}

// resolveSettings merges flags over configuration and validates the result.
func resolveSettings(cfg config.Config, opts transcribeOptions) (settings, error) {
	name := firstNonEmpty(opts.provider, cfg.Provider)
	p := provider.Default
	if name != "" {
		var err error
		if p, err = provider.Parse(name); err != nil {
			return settings{}, err
		}
	}

	language := firstNonEmpty(opts.language, cfg.Language)
	if err := lang.Validate(language); err != nil {
		return settings{}, err
	}

	parallel := cfg.Parallel
	if opts.parallel != 0 {
		parallel = opts.parallel
	}
	if parallel < 0 || parallel > transcribe.MaxRecommendedParallel {
		return settings{}, fmt.Errorf("%w: %d (use 1-%d)", ErrInvalidParallel, parallel, transcribe.MaxRecommendedParallel)
	}

	level := opts.logLevel
	if level != "" {
		if err := config.ValidateValue(config.KeyLogLevel, level); err != nil {
			return settings{}, err
		}
	} else {
		level = cfg.LogLevel
	}

	return settings{
		provider: p,
		language: lang.Normalize(language),
		parallel: parallel,
		logLevel: level,
	}, nil
}

// runTranscribe executes one transcription job.
// Validation order: file -> config -> flags -> output -> API key -> ffmpeg -> store
func runTranscribe(ctx context.Context, env *Env, inputPath string, opts transcribeOptions) error {
	// === VALIDATION (fail-fast) ===

	if _, err := os.Stat(inputPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", inputPath, media.ErrFileNotFound)
		}
		return fmt.Errorf("cannot access input file: %w", err)
	}

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		return err
	}
	s, err := resolveSettings(cfg, opts)
	if err != nil {
		return err
	}
	log := newLogger(env, cfg, s.logLevel)

	output := config.ResolveOutputPath(opts.output, cfg.OutputDir, deriveOutputPath(filepath.Base(inputPath)))
	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("%s: %w", output, ErrOutputExists)
	}
	warnNonMarkdownExtension(env.Stderr, output)

	keyEnv := s.provider.APIKeyEnv()
	apiKey := env.Getenv(keyEnv)
	if apiKey == "" {
		return fmt.Errorf("%w (set it with: export %s=...)", transcribe.ErrAPIKeyMissing, keyEnv)
	}

	// === SETUP ===

	tp, err := env.ProviderFactory.NewProvider(s.provider, apiKey)
	if err != nil {
		return err
	}
	paths, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return err
	}
	comps, err := env.ComponentsFactory.NewComponents(ctx, paths, log)
	if err != nil {
		return err
	}
	store, closeStore, err := env.StoreFactory.NewStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("close checkpoint store")
		}
	}()

	m := metrics.New()
	p, err := pipeline.New(comps, tp, pipelineOptions(cfg, s, store, m, log)...)
	if err != nil {
		return err
	}

	// === RUN ===

	tok, runCtx := pipeline.NewToken(ctx)
	defer tok.Release()
	h := env.InterruptFactory.NewHandler(tok, env.Stderr)
	defer h.Stop()

	_, _ = fmt.Fprintf(env.Stderr, "Transcribing %s with %s...\n", filepath.Base(inputPath), s.provider)
	start := env.Now()
	res, err := p.Run(runCtx, tok, pipeline.Job{
		Path:     inputPath,
		Language: s.language,
		Fresh:    opts.noResume,
		Write:    func(text string) error { return writeFileAtomic(output, text) },
	}, newProgressPrinter(env.Stderr).Func())

	if opts.metricsFile != "" {
		if werr := m.WriteTextfile(opts.metricsFile); werr != nil {
			_, _ = fmt.Fprintf(env.Stderr, "Warning: failed to write metrics: %v\n", werr)
		}
	}
	if err != nil {
		return err
	}

	// === REPORT ===

	if res.Cancelled {
		_, _ = fmt.Fprintf(env.Stderr, "Stopped (%s). Run the same command again to resume.\n", res)
		return ErrCancelled
	}
	if res.Resumed {
		_, _ = fmt.Fprintln(env.Stderr, "Resumed from checkpoint")
	}
	if res.Approximate {
		_, _ = fmt.Fprintln(env.Stderr, "Warning: some timestamps are approximate")
	}
	_, _ = fmt.Fprintf(env.Stderr, "Done: %s (%s, %s)\n", output, res, format.DurationHuman(env.Now().Sub(start)))
	return nil
}

// pipelineOptions maps settings onto pipeline options. Zero values keep the
// provider defaults.
func pipelineOptions(cfg config.Config, s settings, store checkpoint.Store, m *metrics.Metrics, log zerolog.Logger) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithStore(store),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(log),
	}
	if cfg.CacheDir != "" {
		opts = append(opts, pipeline.WithCacheDir(filepath.Join(cfg.CacheDir, jobsDir)))
	}
	if s.parallel > 0 {
		opts = append(opts, pipeline.WithParallel(s.parallel))
	}
	if cfg.RateLimitDelay > 0 {
		opts = append(opts, pipeline.WithRateLimitDelay(cfg.RateLimitDelay))
	}
	return opts
}

// newLogger builds the diagnostic logger on stderr. NO_COLOR disables colors.
func newLogger(env *Env, cfg config.Config, level string) zerolog.Logger {
	return logging.New(logging.Config{
		Level:   level,
		Format:  cfg.LogFormat,
		NoColor: env.Getenv("NO_COLOR") != "",
	}, env.Stderr)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
