package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-chunkscribe/internal/checkpoint"
	"github.com/alnah/go-chunkscribe/internal/config"
	"github.com/alnah/go-chunkscribe/internal/media"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	ffmpegResolver *mockFFmpegResolver
	configLoader   *mockConfigLoader
	components     *mockComponentsFactory
	providers      *mockProviderFactory
	stores         *mockStoreFactory
	interrupts     *mockInterruptFactory

	stdout *syncBuffer
	stderr *syncBuffer
}

// shortRecording is a one-minute mono MP3, sent as is to every provider.
var shortRecording = media.Info{DurationSeconds: 60, AudioCodec: "mp3", Channels: 1, SampleRate: 44100}

func newTestMocks(t *testing.T) *testMocks {
	t.Helper()
	cacheDir := t.TempDir()
	return &testMocks{
		ffmpegResolver: &mockFFmpegResolver{},
		configLoader: &mockConfigLoader{
			LoadFunc: func() (config.Config, error) {
				return config.Config{CacheDir: cacheDir}, nil
			},
		},
		components: &mockComponentsFactory{Prober: &mockProber{Info: shortRecording}},
		providers:  &mockProviderFactory{Provider: &mockProvider{Text: "[00:01] hello world"}},
		stores:     &mockStoreFactory{Store: checkpoint.NewFileStore(filepath.Join(cacheDir, checkpointsDir))},
		interrupts: &mockInterruptFactory{},
		stdout:     &syncBuffer{},
		stderr:     &syncBuffer{},
	}
}

// ---------------------------------------------------------------------------
// testEnv - creates a fully mocked Env for testing
// ---------------------------------------------------------------------------

// testEnvOption adjusts the mocks before the Env is built.
type testEnvOption func(*testMocks)

// testEnv creates a test Env with all dependencies mocked.
// Returns the Env and the mocks for assertions.
func testEnv(t *testing.T, opts ...testEnvOption) (*Env, *testMocks) {
	t.Helper()
	mocks := newTestMocks(t)
	for _, opt := range opts {
		opt(mocks)
	}

	env := NewEnv(
		WithStdout(mocks.stdout),
		WithStderr(mocks.stderr),
		WithGetenv(defaultTestEnv),
		WithNow(fixedTime(time.Date(2026, 1, 26, 14, 30, 52, 0, time.UTC))),
		WithFFmpegResolver(mocks.ffmpegResolver),
		WithConfigLoader(mocks.configLoader),
		WithComponentsFactory(mocks.components),
		WithProviderFactory(mocks.providers),
		WithStoreFactory(mocks.stores),
		WithInterruptFactory(mocks.interrupts),
	)
	return env, mocks
}

// withConfig makes the loader return cfg. An empty CacheDir keeps the
// per-test cache directory.
func withConfig(cfg config.Config) testEnvOption {
	return func(m *testMocks) {
		prev := m.configLoader.LoadFunc
		m.configLoader.LoadFunc = func() (config.Config, error) {
			if cfg.CacheDir == "" {
				base, _ := prev()
				cfg.CacheDir = base.CacheDir
			}
			return cfg, nil
		}
	}
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// fixedTime returns a function that always returns the given time.
func fixedTime(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// staticEnv returns a getenv function that returns values from the given map.
func staticEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

// defaultTestEnv returns an API key for every provider.
func defaultTestEnv(key string) string {
	switch key {
	case "GEMINI_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY":
		return "test-key"
	default:
		return ""
	}
}

// createTestMediaFile creates a temporary media file for testing.
// Returns the file path. The file is automatically cleaned up after the test.
func createTestMediaFile(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)

	// Write minimal content to make the file non-empty
	if err := os.WriteFile(path, []byte("fake audio content"), 0644); err != nil {
		t.Fatalf("failed to create test media file: %v", err)
	}
	return path
}

// readFile returns the content of path or fails the test.
func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
