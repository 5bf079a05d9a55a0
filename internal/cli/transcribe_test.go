package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-chunkscribe/internal/apierr"
	"github.com/alnah/go-chunkscribe/internal/config"
	"github.com/alnah/go-chunkscribe/internal/ffmpeg"
	"github.com/alnah/go-chunkscribe/internal/lang"
	"github.com/alnah/go-chunkscribe/internal/media"
	"github.com/alnah/go-chunkscribe/internal/pipeline"
	"github.com/alnah/go-chunkscribe/internal/provider"
	"github.com/alnah/go-chunkscribe/internal/transcribe"
)

// Notes:
// - runTranscribe is driven end to end with mocked factories: the prober
//   reports a one-minute MP3, so every provider plans a direct upload and
//   no ffmpeg process is needed
// - Output paths are always absolute under t.TempDir()

// ---------------------------------------------------------------------------
// resolveSettings - flag and config precedence
// ---------------------------------------------------------------------------

func TestResolveSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.Config
		opts    transcribeOptions
		want    settings
		wantErr error
	}{
		{
			name: "defaults",
			want: settings{provider: provider.Default},
		},
		{
			name: "config values",
			cfg:  config.Config{Provider: "gemini", Language: "pt-BR", Parallel: 3, LogLevel: "info"},
			want: settings{provider: provider.Gemini, language: "pt-br", parallel: 3, logLevel: "info"},
		},
		{
			name: "flags override config",
			cfg:  config.Config{Provider: "gemini", Language: "fr", Parallel: 3, LogLevel: "info"},
			opts: transcribeOptions{provider: "groq", language: "en", parallel: 1, logLevel: "debug"},
			want: settings{provider: provider.Groq, language: "en", parallel: 1, logLevel: "debug"},
		},
		{
			name:    "unknown provider",
			opts:    transcribeOptions{provider: "whisperx"},
			wantErr: provider.ErrInvalidProvider,
		},
		{
			name:    "unsupported language",
			opts:    transcribeOptions{language: "zz"},
			wantErr: lang.ErrInvalid,
		},
		{
			name:    "parallel above limit",
			opts:    transcribeOptions{parallel: 11},
			wantErr: ErrInvalidParallel,
		},
		{
			name:    "negative parallel",
			opts:    transcribeOptions{parallel: -1},
			wantErr: ErrInvalidParallel,
		},
		{
			name:    "bad log level",
			opts:    transcribeOptions{logLevel: "loud"},
			wantErr: config.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveSettings(tt.cfg, tt.opts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("resolveSettings() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveSettings() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveSettings() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// runTranscribe - success paths
// ---------------------------------------------------------------------------

func TestRunTranscribe_WritesTranscript(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)
	input := createTestMediaFile(t, "standup.mp3")
	output := filepath.Join(t.TempDir(), "standup.md")

	err := runTranscribe(context.Background(), env, input, transcribeOptions{output: output, language: "FR"})
	if err != nil {
		t.Fatalf("runTranscribe() unexpected error: %v", err)
	}

	if got := readFile(t, output); !strings.Contains(got, "hello world") {
		t.Errorf("transcript = %q, want it to contain %q", got, "hello world")
	}
	id, key := mocks.providers.Last()
	if id != provider.OpenAI || key != "test-key" {
		t.Errorf("NewProvider(%v, %q), want openai with test-key", id, key)
	}
	calls := mocks.providers.Provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	if calls[0].Language != "fr" {
		t.Errorf("request language = %q, want %q", calls[0].Language, "fr")
	}
	if mocks.stores.Closed() != 1 {
		t.Errorf("store closed %d times, want 1", mocks.stores.Closed())
	}
	if got := mocks.components.Paths().FFmpeg; got != "/usr/bin/ffmpeg" {
		t.Errorf("components built with ffmpeg %q", got)
	}
	if !strings.Contains(mocks.stderr.String(), "Done: "+output) {
		t.Errorf("stderr = %q, want Done line", mocks.stderr.String())
	}
}

func TestRunTranscribe_ProviderFromConfig(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t, withConfig(config.Config{Provider: "groq"}))
	input := createTestMediaFile(t, "call.mp3")
	output := filepath.Join(t.TempDir(), "call.md")

	if err := runTranscribe(context.Background(), env, input, transcribeOptions{output: output}); err != nil {
		t.Fatalf("runTranscribe() unexpected error: %v", err)
	}
	if id, _ := mocks.providers.Last(); id != provider.Groq {
		t.Errorf("provider = %v, want groq", id)
	}
}

func TestRunTranscribe_OutputDirFromConfig(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	env, _ := testEnv(t, withConfig(config.Config{OutputDir: outDir}))
	input := createTestMediaFile(t, "review.mp3")

	if err := runTranscribe(context.Background(), env, input, transcribeOptions{}); err != nil {
		t.Fatalf("runTranscribe() unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "review.md")); err != nil {
		t.Errorf("default output not written to output-dir: %v", err)
	}
}

func TestRunTranscribe_WritesMetricsFile(t *testing.T) {
	t.Parallel()

	env, _ := testEnv(t)
	input := createTestMediaFile(t, "standup.mp3")
	dir := t.TempDir()
	metricsFile := filepath.Join(dir, "job.prom")

	err := runTranscribe(context.Background(), env, input, transcribeOptions{
		output:      filepath.Join(dir, "standup.md"),
		metricsFile: metricsFile,
	})
	if err != nil {
		t.Fatalf("runTranscribe() unexpected error: %v", err)
	}

	got := readFile(t, metricsFile)
	for _, want := range []string{"chunkscribe_job_info", `provider="openai"`, "chunkscribe_fragments_transcribed_total 1"} {
		if !strings.Contains(got, want) {
			t.Errorf("metrics file missing %q:\n%s", want, got)
		}
	}
}

func TestRunTranscribe_WarnsOnNonMarkdownOutput(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)
	input := createTestMediaFile(t, "standup.mp3")
	output := filepath.Join(t.TempDir(), "standup.txt")

	if err := runTranscribe(context.Background(), env, input, transcribeOptions{output: output}); err != nil {
		t.Fatalf("runTranscribe() unexpected error: %v", err)
	}
	if !strings.Contains(mocks.stderr.String(), "regardless of .txt extension") {
		t.Errorf("stderr = %q, want extension warning", mocks.stderr.String())
	}
}

// ---------------------------------------------------------------------------
// runTranscribe - validation happens before any setup
// ---------------------------------------------------------------------------

func TestRunTranscribe_FileNotFound(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)

	err := runTranscribe(context.Background(), env, filepath.Join(t.TempDir(), "missing.mp3"), transcribeOptions{})
	if !errors.Is(err, media.ErrFileNotFound) {
		t.Fatalf("error = %v, want media.ErrFileNotFound", err)
	}
	if mocks.configLoader.LoadCalls() != 0 {
		t.Error("config loaded for a missing file")
	}
}

func TestRunTranscribe_ConfigError(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)
	mocks.configLoader.LoadFunc = func() (config.Config, error) {
		return config.Config{}, config.ErrInvalidValue
	}

	err := runTranscribe(context.Background(), env, createTestMediaFile(t, "a.mp3"), transcribeOptions{})
	if !errors.Is(err, config.ErrInvalidValue) {
		t.Fatalf("error = %v, want config.ErrInvalidValue", err)
	}
}

func TestRunTranscribe_OutputExists(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)
	input := createTestMediaFile(t, "standup.mp3")
	output := filepath.Join(t.TempDir(), "standup.md")
	if err := os.WriteFile(output, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	err := runTranscribe(context.Background(), env, input, transcribeOptions{output: output})
	if !errors.Is(err, ErrOutputExists) {
		t.Fatalf("error = %v, want ErrOutputExists", err)
	}
	if len(mocks.providers.Provider.Calls()) != 0 {
		t.Error("provider called although output exists")
	}
	if got := readFile(t, output); got != "keep me" {
		t.Errorf("existing output overwritten: %q", got)
	}
}

func TestRunTranscribe_APIKeyMissing(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)
	env.Getenv = staticEnv(map[string]string{"OPENAI_API_KEY": "sk-test"})
	input := createTestMediaFile(t, "standup.mp3")

	err := runTranscribe(context.Background(), env, input, transcribeOptions{
		output:   filepath.Join(t.TempDir(), "out.md"),
		provider: "gemini",
	})
	if !errors.Is(err, transcribe.ErrAPIKeyMissing) {
		t.Fatalf("error = %v, want transcribe.ErrAPIKeyMissing", err)
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("error %q does not name GEMINI_API_KEY", err)
	}
	if mocks.ffmpegResolver.ResolveCalls() != 0 {
		t.Error("ffmpeg resolved before the API key check")
	}
}

func TestRunTranscribe_SetupErrors(t *testing.T) {
	t.Parallel()

	errStore := errors.New("redis down")

	tests := []struct {
		name    string
		setup   func(*testMocks)
		wantErr error
	}{
		{
			name: "ffmpeg not found",
			setup: func(m *testMocks) {
				m.ffmpegResolver.ResolveFunc = func(context.Context) (ffmpeg.Paths, error) {
					return ffmpeg.Paths{}, ffmpeg.ErrNotFound
				}
			},
			wantErr: ffmpeg.ErrNotFound,
		},
		{
			name:    "provider factory",
			setup:   func(m *testMocks) { m.providers.Err = transcribe.ErrAPIKeyMissing },
			wantErr: transcribe.ErrAPIKeyMissing,
		},
		{
			name:    "checkpoint store",
			setup:   func(m *testMocks) { m.stores.Err = errStore },
			wantErr: errStore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, mocks := testEnv(t)
			tt.setup(mocks)
			output := filepath.Join(t.TempDir(), "out.md")

			err := runTranscribe(context.Background(), env, createTestMediaFile(t, "a.mp3"), transcribeOptions{output: output})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
				t.Error("output written despite setup failure")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// runTranscribe - failures and cancellation
// ---------------------------------------------------------------------------

func TestRunTranscribe_ProviderFailure(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)
	mocks.providers.Provider.Err = apierr.ErrAuthFailed
	dir := t.TempDir()
	output := filepath.Join(dir, "out.md")
	metricsFile := filepath.Join(dir, "job.prom")

	err := runTranscribe(context.Background(), env, createTestMediaFile(t, "a.mp3"), transcribeOptions{
		output:      output,
		metricsFile: metricsFile,
	})
	if !errors.Is(err, apierr.ErrAuthFailed) {
		t.Fatalf("error = %v, want apierr.ErrAuthFailed", err)
	}
	var se *pipeline.StageError
	if !errors.As(err, &se) || se.Stage != pipeline.StageTranscribe {
		t.Errorf("error = %v, want a transcribe StageError", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Error("output written despite failure")
	}
	if _, statErr := os.Stat(metricsFile); statErr != nil {
		t.Errorf("metrics not written on failure: %v", statErr)
	}
}

func TestRunTranscribe_StoppedByUser(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)
	mocks.interrupts.StopAtStart = true
	output := filepath.Join(t.TempDir(), "out.md")

	err := runTranscribe(context.Background(), env, createTestMediaFile(t, "a.mp3"), transcribeOptions{output: output})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	if len(mocks.providers.Provider.Calls()) != 0 {
		t.Error("provider called after stop")
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Error("output written after stop")
	}
	if !strings.Contains(mocks.stderr.String(), "Run the same command again to resume") {
		t.Errorf("stderr = %q, want resume hint", mocks.stderr.String())
	}
}

// ---------------------------------------------------------------------------
// TranscribeCmd - flag wiring
// ---------------------------------------------------------------------------

func TestTranscribeCmd_Flags(t *testing.T) {
	t.Parallel()

	env, _ := testEnv(t)
	cmd := TranscribeCmd(env)

	for _, name := range []string{"output", "provider", "language", "parallel", "metrics-file", "no-resume", "log-level"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not defined", name)
		}
	}
	for short, long := range map[string]string{"o": "output", "l": "language", "p": "parallel"} {
		f := cmd.Flags().ShorthandLookup(short)
		if f == nil || f.Name != long {
			t.Errorf("-%s is not the shorthand of --%s", short, long)
		}
	}
}

func TestTranscribeCmd_Execute(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)
	input := createTestMediaFile(t, "standup.mp3")
	output := filepath.Join(t.TempDir(), "standup.md")

	cmd := TranscribeCmd(env)
	cmd.SetArgs([]string{input, "-o", output, "--provider", "gemini", "-p", "2", "--no-resume"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}
	if id, _ := mocks.providers.Last(); id != provider.Gemini {
		t.Errorf("provider = %v, want gemini", id)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output not written: %v", err)
	}
}
