package cli

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/alnah/go-chunkscribe/internal/checkpoint"
	"github.com/alnah/go-chunkscribe/internal/config"
	"github.com/alnah/go-chunkscribe/internal/ffmpeg"
	"github.com/alnah/go-chunkscribe/internal/interrupt"
	"github.com/alnah/go-chunkscribe/internal/media"
	"github.com/alnah/go-chunkscribe/internal/pipeline"
	"github.com/alnah/go-chunkscribe/internal/provider"
	"github.com/alnah/go-chunkscribe/internal/transcribe"
)

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc func(ctx context.Context) (ffmpeg.Paths, error)

	mu           sync.Mutex
	resolveCalls int
}

func (m *mockFFmpegResolver) Resolve(ctx context.Context) (ffmpeg.Paths, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx)
	}
	return ffmpeg.Paths{FFmpeg: "/usr/bin/ffmpeg", FFprobe: "/usr/bin/ffprobe"}, nil
}

func (m *mockFFmpegResolver) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Config{}, nil
}

func (m *mockConfigLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Mock ComponentsFactory + Prober
// ---------------------------------------------------------------------------

// mockProber returns Info for every source.
type mockProber struct {
	Info media.Info
	Err  error
}

func (m *mockProber) Probe(context.Context, media.Source) (media.Info, error) {
	return m.Info, m.Err
}

type mockComponentsFactory struct {
	Prober *mockProber
	Err    error

	mu    sync.Mutex
	paths ffmpeg.Paths
}

func (m *mockComponentsFactory) NewComponents(_ context.Context, paths ffmpeg.Paths, _ zerolog.Logger) (pipeline.Components, error) {
	m.mu.Lock()
	m.paths = paths
	m.mu.Unlock()

	if m.Err != nil {
		return pipeline.Components{}, m.Err
	}
	return pipeline.Components{Prober: m.Prober}, nil
}

func (m *mockComponentsFactory) Paths() ffmpeg.Paths {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paths
}

// ---------------------------------------------------------------------------
// Mock ProviderFactory + Provider
// ---------------------------------------------------------------------------

// mockProvider answers every request with Text.
type mockProvider struct {
	NameValue string
	Text      string
	Err       error

	mu    sync.Mutex
	calls []transcribe.Request
}

func (m *mockProvider) Name() string { return m.NameValue }

func (m *mockProvider) Transcribe(_ context.Context, req transcribe.Request) (transcribe.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.Err != nil {
		return transcribe.Response{}, m.Err
	}
	return transcribe.Response{Text: m.Text, Tokens: 5}, nil
}

func (m *mockProvider) Calls() []transcribe.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcribe.Request(nil), m.calls...)
}

type mockProviderFactory struct {
	Provider *mockProvider
	Err      error

	mu     sync.Mutex
	id     provider.Provider
	apiKey string
}

func (m *mockProviderFactory) NewProvider(p provider.Provider, apiKey string) (transcribe.Provider, error) {
	m.mu.Lock()
	m.id, m.apiKey = p, apiKey
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	m.Provider.NameValue = p.String()
	return m.Provider, nil
}

func (m *mockProviderFactory) Last() (provider.Provider, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.apiKey
}

// ---------------------------------------------------------------------------
// Mock StoreFactory
// ---------------------------------------------------------------------------

type mockStoreFactory struct {
	Store checkpoint.Store
	Err   error

	mu     sync.Mutex
	closed int
}

func (m *mockStoreFactory) NewStore(context.Context, config.Config) (checkpoint.Store, func() error, error) {
	if m.Err != nil {
		return nil, nil, m.Err
	}
	return m.Store, func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed++
		return nil
	}, nil
}

func (m *mockStoreFactory) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// ---------------------------------------------------------------------------
// Mock InterruptFactory
// ---------------------------------------------------------------------------

// mockInterruptFactory installs a handler without signals. With StopAtStart
// the job is stopped as if Ctrl+C was pressed before any work.
type mockInterruptFactory struct {
	StopAtStart bool

	mu      sync.Mutex
	handler *interrupt.Handler
}

func (m *mockInterruptFactory) NewHandler(s interrupt.Stopper, stderr io.Writer) InterruptHandler {
	h := interrupt.NewHandlerWithOptions(interrupt.Options{Stopper: s, Stderr: stderr})
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
	if m.StopAtStart {
		s.Stop()
	}
	return h
}

// Compile-time interface verification.
var (
	_ FFmpegResolver      = (*mockFFmpegResolver)(nil)
	_ ConfigLoader        = (*mockConfigLoader)(nil)
	_ ComponentsFactory   = (*mockComponentsFactory)(nil)
	_ ProviderFactory     = (*mockProviderFactory)(nil)
	_ StoreFactory        = (*mockStoreFactory)(nil)
	_ InterruptFactory    = (*mockInterruptFactory)(nil)
	_ transcribe.Provider = (*mockProvider)(nil)
)
