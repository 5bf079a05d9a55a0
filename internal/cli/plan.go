package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alnah/go-chunkscribe/internal/format"
	"github.com/alnah/go-chunkscribe/internal/media"
	"github.com/alnah/go-chunkscribe/internal/pipeline"
	"github.com/alnah/go-chunkscribe/internal/strategy"
)

// PlanCmd creates the plan command.
// The env parameter provides injectable dependencies for testing.
func PlanCmd(env *Env) *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "plan <media-file>",
		Short: "Show how a file would be processed",
		Long: `Probe a file and print the processing plan chosen for a provider,
without compressing, chunking or calling any API. No API key is needed.`,
		Example: `  chunkscribe plan meeting.m4a
  chunkscribe plan lecture.mp4 --provider gemini`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), env, args[0], providerName)
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "Transcription provider: gemini, groq, openai (default: openai)")

	return cmd
}

// runPlan probes inputPath and prints the plan to stdout.
func runPlan(ctx context.Context, env *Env, inputPath, providerName string) error {
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
	s, err := resolveSettings(cfg, transcribeOptions{provider: providerName})
	if err != nil {
		return err
	}
	log := newLogger(env, cfg, s.logLevel)

	paths, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return err
	}
	comps, err := env.ComponentsFactory.NewComponents(ctx, paths, log)
	if err != nil {
		return err
	}

	src, info, plan, err := pipeline.Inspect(ctx, comps.Prober, s.provider, inputPath, "")
	if err != nil {
		return err
	}
	printPlan(env.Stdout, src, info, plan)
	return nil
}

// printPlan writes the plan as aligned "key: value" lines.
func printPlan(w io.Writer, src media.Source, info media.Info, plan strategy.Plan) {
	line := func(key, layout string, args ...any) {
		_, _ = fmt.Fprintf(w, "%-10s "+layout+"\n", append([]any{key + ":"}, args...)...)
	}

	duration := "unknown"
	if media.KnownDuration(info.DurationSeconds) {
		duration = seconds(info.DurationSeconds)
	}
	kind := "audio"
	if info.IsVideo {
		kind = "video"
	}

	line("File", "%s", src.Name)
	line("Size", "%s", format.Size(src.Size))
	line("Duration", "%s", duration)
	line("Media", "%s, %s, %d ch, %d Hz", kind, orUnknown(info.AudioCodec), info.Channels, info.SampleRate)
	line("Provider", "%s", plan.Provider)
	line("Plan", "%s", plan.Kind)
	line("Reason", "%s", plan.Reason)
	if plan.Compresses() {
		line("Encode", "mp3 %d kbps, %d Hz mono", plan.Profile.BitrateKbps, plan.Profile.SampleRate)
	}
	if plan.Kind == strategy.TemporalChunk {
		line("Chunks", "%s each, %s overlap", seconds(plan.ChunkMinutes*60), seconds(plan.OverlapSeconds))
	}
	if plan.MaxChunkBytes > 0 {
		line("Max chunk", "%s", format.Size(plan.MaxChunkBytes))
	}
	if plan.HasFallback() {
		line("Fallback", "%s", plan.FallbackKind)
	}
	limits := strategy.LimitsFor(plan.Provider)
	line("Dispatch", "%s, up to %d requests", limits.Mode, limits.MaxParallel)
}

func seconds(s float64) string {
	return format.Duration(time.Duration(s * float64(time.Second)))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
