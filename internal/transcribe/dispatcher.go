package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-chunkscribe/internal/apierr"
	"github.com/alnah/go-chunkscribe/internal/chunk"
	"github.com/alnah/go-chunkscribe/internal/logging"
	"github.com/alnah/go-chunkscribe/internal/strategy"
)

// ErrStopped indicates Dispatch returned early because stop was closed.
// The fragments completed before the stop are returned with it.
var ErrStopped = errors.New("dispatch stopped")

// MaxRecommendedParallel is the upper limit for concurrent requests.
// Higher values trigger provider rate limiting.
const MaxRecommendedParallel = 10

const (
	defaultRateLimitDelay = 10 * time.Second
	defaultSpacing        = time.Second

	baseCallTimeout   = 90 * time.Second
	perMiBCallTimeout = 15 * time.Second
	freeTimeoutBytes  = 2 << 20
	mib               = 1 << 20
)

// Fragment is the transcription of one chunk.
type Fragment struct {
	Index    int       `json:"index"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
	Tokens   int       `json:"tokens"`
	// Offset is the chunk start in seconds on the original timeline.
	Offset float64 `json:"offset"`
	// Approximate is set when the chunk's position on the timeline is unknown.
	Approximate bool `json:"approximate"`
}

// ProgressFunc receives the number of completed chunks. It may be called
// from several goroutines.
type ProgressFunc func(done, total int)

// CallTimeout is the deadline for one request carrying size bytes:
// 90s plus 15s for every started MiB above 2 MiB.
func CallTimeout(size int64) time.Duration {
	extra := size - freeTimeoutBytes
	if extra <= 0 {
		return baseCallTimeout
	}
	mibs := (extra + mib - 1) / mib
	return baseCallTimeout + time.Duration(mibs)*perMiBCallTimeout
}

// Dispatcher sends chunks to one Provider and collects their fragments.
type Dispatcher struct {
	provider       Provider
	mode           strategy.DispatchMode
	maxParallel    int
	spacing        time.Duration
	rateLimitDelay time.Duration
	language       string
	granularity    Granularity
	timeout        func(int64) time.Duration
	completed      map[int]Fragment
	onFragment     func(Fragment)
	onRetry        func(err error)
	log            zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLimits applies a provider's dispatch mode and parallelism.
func WithLimits(l strategy.Limits) DispatcherOption {
	return func(d *Dispatcher) {
		d.mode = l.Mode
		if l.MaxParallel > 0 {
			d.maxParallel = l.MaxParallel
		}
	}
}

// WithMaxParallel overrides the concurrency of parallel dispatch.
// It has no effect in sequential mode.
func WithMaxParallel(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxParallel = min(n, MaxRecommendedParallel)
		}
	}
}

// WithSpacing sets the pause between sequential requests.
func WithSpacing(s time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if s >= 0 {
			d.spacing = s
		}
	}
}

// WithRateLimitDelay sets the wait before the single rate-limit retry.
func WithRateLimitDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.rateLimitDelay = delay
		}
	}
}

// WithLanguage sets the language hint sent with every request.
func WithLanguage(tag string) DispatcherOption {
	return func(d *Dispatcher) { d.language = tag }
}

// WithGranularity sets the timing detail requested from the provider.
func WithGranularity(g Granularity) DispatcherOption {
	return func(d *Dispatcher) { d.granularity = g }
}

// WithCallTimeout replaces CallTimeout (for testing).
func WithCallTimeout(fn func(size int64) time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = fn }
}

// WithCompleted supplies fragments from a previous run. Their chunks are
// not sent again.
func WithCompleted(fragments []Fragment) DispatcherOption {
	return func(d *Dispatcher) {
		d.completed = make(map[int]Fragment, len(fragments))
		for _, f := range fragments {
			d.completed[f.Index] = f
		}
	}
}

// WithFragmentHook is called once for every newly transcribed fragment,
// possibly from several goroutines.
func WithFragmentHook(fn func(Fragment)) DispatcherOption {
	return func(d *Dispatcher) { d.onFragment = fn }
}

// WithRetryHook is called before each rate-limit retry.
func WithRetryHook(fn func(err error)) DispatcherOption {
	return func(d *Dispatcher) { d.onRetry = fn }
}

// WithDispatchLogger sets the dispatcher logger.
func WithDispatchLogger(l zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher creates a Dispatcher for p. The default mode is sequential.
func NewDispatcher(p Provider, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		provider:       p,
		mode:           strategy.Sequential,
		maxParallel:    1,
		spacing:        defaultSpacing,
		rateLimitDelay: defaultRateLimitDelay,
		timeout:        CallTimeout,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logging.Component(d.log, "dispatch").With().Str(logging.FieldProvider, p.Name()).Logger()
	return d
}

// Dispatch transcribes chunks and returns their fragments sorted by Index.
//
// Closing stop prevents new requests from being scheduled; requests already
// in flight complete, and the finished fragments are returned with
// ErrStopped. Canceling ctx aborts in-flight requests. Any other failure
// aborts the whole dispatch.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	stop <-chan struct{},
	chunks []chunk.Chunk,
	progress ProgressFunc,
) ([]Fragment, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	slots := 1
	if d.mode == strategy.Parallel {
		slots = max(1, d.maxParallel)
	}
	total := len(chunks)
	results := make([]*Fragment, total)
	var done atomic.Int64
	report := func() {
		n := int(done.Add(1))
		if progress != nil {
			progress(n, total)
		}
	}

	// Slots are acquired before scheduling so a stop takes effect
	// between two requests.
	sem := make(chan struct{}, slots)
	g, gctx := errgroup.WithContext(ctx)
	stopped := false
	sent := 0

schedule:
	for i, c := range chunks {
		if f, ok := d.completed[c.Index]; ok {
			results[i] = &f
			report()
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			break schedule
		case <-stop:
			stopped = true
			break schedule
		}
		if isClosed(stop) {
			stopped = true
			<-sem
			break
		}
		if gctx.Err() != nil {
			<-sem
			break
		}

		if slots == 1 && sent > 0 && d.spacing > 0 {
			if err := wait(gctx, stop, d.spacing); err != nil {
				<-sem
				if errors.Is(err, ErrStopped) {
					stopped = true
				}
				break
			}
		}
		sent++

		g.Go(func() error {
			defer func() { <-sem }()
			f, err := d.transcribeChunk(gctx, c)
			if err != nil {
				return fmt.Errorf("chunk %d (%s): %w", c.Index, c.FileName(), err)
			}
			results[i] = &f
			if d.onFragment != nil {
				d.onFragment(f)
			}
			report()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fragments := make([]Fragment, 0, total)
	for _, f := range results {
		if f != nil {
			fragments = append(fragments, *f)
		}
	}
	sort.Slice(fragments, func(a, b int) bool { return fragments[a].Index < fragments[b].Index })

	if stopped && len(fragments) < total {
		d.log.Info().Int("done", len(fragments)).Int("total", total).Msg("dispatch stopped")
		return fragments, ErrStopped
	}
	return fragments, nil
}

// transcribeChunk sends one chunk, retrying once on a rate limit.
func (d *Dispatcher) transcribeChunk(ctx context.Context, c chunk.Chunk) (Fragment, error) {
	timeout := d.timeout(c.Size())
	cfg := apierr.RetryOnce(d.rateLimitDelay)
	cfg.OnRetry = func(attempt int, err error) {
		d.log.Warn().Err(err).Int("chunk", c.Index).Dur("delay", d.rateLimitDelay).Msg("rate limited, retrying")
		if d.onRetry != nil {
			d.onRetry(err)
		}
	}

	resp, err := apierr.RetryWithBackoff(ctx, cfg, func() (Response, error) {
		return d.call(ctx, c, timeout)
	}, apierr.IsRateLimit)
	if err != nil {
		return Fragment{}, err
	}

	text := resp.Text
	if len(resp.Segments) > 0 {
		text = RenderSegments(resp.Segments)
	}
	if text == "" {
		return Fragment{}, ErrEmptyResult
	}

	d.log.Debug().Int("chunk", c.Index).Int("tokens", resp.Tokens).Msg("chunk transcribed")
	return Fragment{
		Index:       c.Index,
		Text:        text,
		Segments:    resp.Segments,
		Tokens:      resp.Tokens,
		Offset:      c.StartTime,
		Approximate: c.Timing == chunk.TimingUnknown,
	}, nil
}

func (d *Dispatcher) call(ctx context.Context, c chunk.Chunk, timeout time.Duration) (Response, error) {
	payload, err := c.Open()
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = payload.Close() }()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := d.provider.Transcribe(callCtx, Request{
		Payload:     payload,
		FileName:    c.FileName(),
		MIMEType:    c.MIMEType(),
		SizeBytes:   c.Size(),
		Language:    d.language,
		Granularity: d.granularity,
	})
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) &&
		!errors.Is(err, apierr.ErrTimeout) {
		err = fmt.Errorf("no response after %s: %w", timeout, apierr.ErrTimeout)
	}
	return resp, err
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// wait sleeps for d unless ctx is canceled or stop is closed.
func wait(ctx context.Context, stop <-chan struct{}, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return ErrStopped
	case <-timer.C:
		return nil
	}
}
