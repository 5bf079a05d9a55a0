// Package pipeline runs one transcription job end to end: probe, plan,
// compress or chunk, dispatch, merge.
//
// Every job owns an explicit context, a cancellation Token and a
// checkpoint Journal. Stages check the Token before expensive work, and
// completed chunks are journaled so a resubmitted job skips them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alnah/go-chunkscribe/internal/checkpoint"
	"github.com/alnah/go-chunkscribe/internal/chunk"
	"github.com/alnah/go-chunkscribe/internal/compress"
	"github.com/alnah/go-chunkscribe/internal/ffmpeg"
	"github.com/alnah/go-chunkscribe/internal/logging"
	"github.com/alnah/go-chunkscribe/internal/media"
	"github.com/alnah/go-chunkscribe/internal/metrics"
	"github.com/alnah/go-chunkscribe/internal/provider"
	"github.com/alnah/go-chunkscribe/internal/strategy"
	"github.com/alnah/go-chunkscribe/internal/transcribe"
	"github.com/alnah/go-chunkscribe/internal/transcript"
)

const (
	compressedName = "compressed.mp3"
	chunksDir      = "chunks"
	// keyDirLen is how much of the checkpoint key names the chunk directory.
	keyDirLen = 16
)

// Prober reports duration and container class.
type Prober interface {
	Probe(ctx context.Context, src media.Source) (media.Info, error)
}

// Compressor re-encodes a recording to a mono MP3.
type Compressor interface {
	Compress(ctx context.Context, in compress.Input, prof compress.Profile, outPath string, progress compress.ProgressFunc) (compress.Result, error)
}

// TemporalChunker cuts a recording into overlapping time windows.
type TemporalChunker interface {
	Chunk(ctx context.Context, src media.Source, info media.Info, opts chunk.Options) ([]chunk.Chunk, error)
}

// BinaryChunker splits a simple format by byte ranges.
type BinaryChunker interface {
	Chunk(src media.Source, maxBytes int64) ([]chunk.Chunk, error)
}

// Components are the media stages a Pipeline drives.
type Components struct {
	Prober     Prober
	Compressor Compressor
	Temporal   TemporalChunker
	Binary     BinaryChunker
}

// Compile-time interface compliance checks.
var (
	_ Prober          = (*media.Prober)(nil)
	_ Compressor      = (*compress.Compressor)(nil)
	_ TemporalChunker = (*chunk.TemporalChunker)(nil)
	_ BinaryChunker   = (*chunk.BinaryChunker)(nil)
)

// NewComponents builds the media stages on a shared engine.
func NewComponents(engine *ffmpeg.Engine, log zerolog.Logger) Components {
	return Components{
		Prober:     media.NewProber(engine, media.WithLogger(logging.Component(log, "probe"))),
		Compressor: compress.New(engine, compress.WithLogger(logging.Component(log, "compress"))),
		Temporal:   chunk.NewTemporalChunker(engine, chunk.WithLogger(logging.Component(log, "chunk"))),
		Binary:     chunk.NewBinaryChunker(chunk.WithBinaryLogger(logging.Component(log, "chunk"))),
	}
}

// Job is one input to transcribe.
type Job struct {
	Path string
	// MIMEType is the declared type; empty means sniff the content.
	MIMEType string
	// Language is a BCP 47 hint; empty means auto-detect.
	Language string
	// Fresh discards any checkpoint left by a previous run.
	Fresh bool
	// Write receives the final transcript. The checkpoint is only deleted
	// once it returned nil.
	Write func(text string) error
}

// Result describes a finished, or cancelled, job.
type Result struct {
	JobID       string
	Transcript  string
	Plan        strategy.Plan
	Info        media.Info
	Trims       []transcript.Trim
	Approximate bool
	// Resumed is true when a checkpoint from a previous run was used.
	Resumed bool
	// Done and Total count transcribed chunks.
	Done  int
	Total int
	// Cancelled is true when the job was stopped or aborted. The error
	// returned with it is nil.
	Cancelled bool
}

// Pipeline coordinates one job at a time per call to Run. A Pipeline may
// be reused for several jobs, sequentially or concurrently.
type Pipeline struct {
	c              Components
	provider       transcribe.Provider
	id             provider.Provider
	store          checkpoint.Store
	metrics        *metrics.Metrics
	resolver       *transcript.Resolver
	cacheDir       string
	parallel       int
	rateLimitDelay time.Duration
	dispatchOpts   []transcribe.DispatcherOption
	newID          func() string
	log            zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore enables checkpoints in s.
func WithStore(s checkpoint.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithMetrics records job metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithResolver replaces the default overlap resolver.
func WithResolver(r *transcript.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithCacheDir sets where chunk files are kept between runs.
func WithCacheDir(dir string) Option {
	return func(p *Pipeline) { p.cacheDir = dir }
}

// WithParallel caps concurrent requests for parallel providers.
func WithParallel(n int) Option {
	return func(p *Pipeline) { p.parallel = n }
}

// WithRateLimitDelay sets the wait before retrying a rate-limited request.
func WithRateLimitDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.rateLimitDelay = d }
}

// WithDispatchOptions appends raw dispatcher options (for testing).
func WithDispatchOptions(opts ...transcribe.DispatcherOption) Option {
	return func(p *Pipeline) { p.dispatchOpts = append(p.dispatchOpts, opts...) }
}

// WithIDGenerator replaces uuid job IDs (for testing).
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) { p.newID = fn }
}

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New creates a Pipeline sending chunks to tp.
func New(c Components, tp transcribe.Provider, opts ...Option) (*Pipeline, error) {
	if tp == nil {
		return nil, ErrNoProvider
	}
	id, err := provider.Parse(tp.Name())
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		c:        c,
		provider: tp,
		id:       id,
		newID:    uuid.NewString,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cacheDir == "" {
		p.cacheDir = filepath.Join(os.TempDir(), "chunkscribe")
	}
	if p.resolver == nil {
		p.resolver = transcript.NewResolver(transcript.WithLogger(p.log))
	}
	p.log = logging.Component(p.log, "pipeline")
	return p, nil
}

// Inspect probes path and returns the plan a job for id would execute,
// without compressing, chunking or sending anything.
func Inspect(ctx context.Context, pr Prober, id provider.Provider, path, mimeType string) (media.Source, media.Info, strategy.Plan, error) {
	src, err := media.Open(path, mimeType)
	if err != nil {
		return media.Source{}, media.Info{}, strategy.Plan{}, stageErr(StageProbe, err)
	}
	info, err := pr.Probe(ctx, src)
	if err != nil {
		return media.Source{}, media.Info{}, strategy.Plan{}, stageErr(StageProbe, err)
	}
	src = src.WithDuration(info.DurationSeconds)
	plan := strategy.Select(strategy.Input{
		Provider:        id,
		SizeBytes:       src.Size,
		DurationMinutes: info.DurationMinutes(),
		IsContainer:     info.IsContainer,
		IsVideo:         info.IsVideo,
	})
	return src, info, plan, nil
}

// Run executes job. tok may be nil when the caller never stops early.
//
// A soft stop or a canceled ctx ends the job with Result.Cancelled set and
// a nil error; completed fragments stay checkpointed for the next run.
// Every other failure is a *StageError.
func (p *Pipeline) Run(ctx context.Context, tok *Token, job Job, progress ProgressFunc) (Result, error) {
	tr := newTracker(progress)
	p.metrics.SetCancelled(false)

	start := time.Now()
	src, info, plan, err := Inspect(ctx, p.c.Prober, p.id, job.Path, job.MIMEType)
	if err != nil {
		if isCancel(ctx, err) {
			return p.cancelled(Result{}, StageProbe)
		}
		return Result{}, err
	}
	p.metrics.ObserveStage(StageProbe, start)
	tr.report(StageProbe, 1)

	res := Result{Plan: plan, Info: info}
	p.metrics.RecordJob(p.id.String(), string(plan.Kind))
	if tok.Stopped() {
		return p.cancelled(res, StageProbe)
	}

	j, resumed, err := p.openJournal(ctx, job, src, plan)
	if err != nil {
		return res, stageErr(StageCheckpoint, err)
	}
	st := j.State()
	res.JobID, res.Resumed = st.JobID, resumed
	log := p.log.With().Str(logging.FieldJobID, st.JobID).Logger()
	log.Info().
		Str("file", src.Name).
		Float64("duration_s", info.DurationSeconds).
		Stringer("plan", plan).
		Str("reason", plan.Reason).
		Bool("resumed", resumed).
		Msg("job started")

	dir := st.ChunkDir
	if dir == "" {
		dir = p.chunkDir(st)
	}

	var chunks []chunk.Chunk
	if resumed && st.Prepared() && chunksExist(st.Chunks) {
		chunks = st.Chunks
		if plan.HasFallback() && st.Plan == string(strategy.TemporalChunkFallback) {
			plan = plan.Fallback()
		}
		tr.report(StageChunk, 1)
		log.Info().Int("chunks", len(chunks)).Int("fragments", len(st.Fragments)).Msg("resuming prepared job")
	} else {
		chunks, plan, err = p.prepare(ctx, tok, tr, src, info, plan, dir)
		if err != nil {
			if isCancel(ctx, err) {
				return p.cancelled(res, prepareStage(plan))
			}
			return res, err
		}
		for _, c := range chunks {
			p.metrics.RecordChunk(c.Size())
		}
		if err := j.Prepared(ctx, plan.Kind, dir, chunks); err != nil {
			return res, stageErr(StageCheckpoint, err)
		}
		if kept := len(j.State().Fragments); kept < len(st.Fragments) {
			log.Info().Int("kept", kept).Int("dropped", len(st.Fragments)-kept).Msg("re-prepared job, stale fragments dropped")
		}
	}
	res.Plan = plan
	res.Total = len(chunks)

	if tok.Stopped() {
		return p.cancelled(res, StageChunk)
	}

	frags, err := p.dispatch(ctx, tok, tr, j, job, plan, chunks, log)
	res.Done = len(frags)
	if err != nil {
		if isCancel(ctx, err) {
			log.Info().Int("done", res.Done).Int("total", res.Total).Msg("progress checkpointed")
			return p.cancelled(res, StageTranscribe)
		}
		return res, stageErr(StageTranscribe, err)
	}

	start = time.Now()
	tr.report(StageMerge, 0)
	final := transcript.Merge(frags, plan.Overlaps(), p.resolver)
	tr.report(StageMerge, 1)
	p.metrics.ObserveStage(StageMerge, start)
	p.metrics.RecordTrims(len(final.Trims))
	res.Transcript = final.Text
	res.Trims = final.Trims
	res.Approximate = final.Approximate

	if job.Write != nil {
		if err := job.Write(final.Text); err != nil {
			return res, stageErr(StageWrite, err)
		}
	}

	if err := j.Finish(ctx); err != nil {
		log.Warn().Err(err).Msg("checkpoint cleanup failed")
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("chunk cleanup failed")
	}
	log.Info().Int("chunks", res.Total).Int("trims", len(res.Trims)).Msg("job finished")
	return res, nil
}

// prepareStage names the preparation stage a plan starts with.
func prepareStage(plan strategy.Plan) string {
	if plan.Compresses() {
		return StageCompress
	}
	return StageChunk
}

// openJournal resumes or starts the checkpoint for this input and plan.
// Without a store the journal lives in memory only.
func (p *Pipeline) openJournal(ctx context.Context, job Job, src media.Source, plan strategy.Plan) (*checkpoint.Journal, bool, error) {
	base := checkpoint.State{
		JobID:    p.newID(),
		Source:   src.Path,
		Provider: p.id.String(),
		Plan:     string(plan.Kind),
	}
	if p.store == nil {
		j, _, err := checkpoint.Open(ctx, discardStore{}, base)
		return j, false, err
	}

	key, err := checkpoint.Key(src.Path, p.id, plan)
	if err != nil {
		return nil, false, err
	}
	base.Key = key
	if job.Fresh {
		if err := p.store.Delete(ctx, key); err != nil {
			return nil, false, err
		}
	}
	return checkpoint.Open(ctx, p.store, base)
}

func (p *Pipeline) chunkDir(st checkpoint.State) string {
	name := st.JobID
	if len(st.Key) >= keyDirLen {
		name = st.Key[:keyDirLen]
	}
	return filepath.Join(p.cacheDir, chunksDir, name)
}

func (p *Pipeline) dispatch(
	ctx context.Context,
	tok *Token,
	tr *tracker,
	j *checkpoint.Journal,
	job Job,
	plan strategy.Plan,
	chunks []chunk.Chunk,
	log zerolog.Logger,
) ([]transcribe.Fragment, error) {
	start := time.Now()
	completed := j.State().Fragments
	p.metrics.RecordResumed(len(completed))

	// Fragments finished after an abort are still worth keeping.
	saveCtx := context.WithoutCancel(ctx)
	opts := []transcribe.DispatcherOption{
		transcribe.WithLimits(strategy.LimitsFor(plan.Provider)),
		transcribe.WithLanguage(job.Language),
		transcribe.WithGranularity(transcribe.GranularitySegment),
		transcribe.WithCompleted(completed),
		transcribe.WithFragmentHook(func(f transcribe.Fragment) {
			p.metrics.RecordFragment(f.Tokens)
			if err := j.Fragment(saveCtx, f); err != nil {
				log.Warn().Err(err).Int(logging.FieldChunk, f.Index).Msg("checkpoint write failed")
			}
		}),
		transcribe.WithRetryHook(func(error) { p.metrics.RecordRetry() }),
		transcribe.WithDispatchLogger(log),
	}
	if p.parallel > 0 {
		opts = append(opts, transcribe.WithMaxParallel(p.parallel))
	}
	if p.rateLimitDelay > 0 {
		opts = append(opts, transcribe.WithRateLimitDelay(p.rateLimitDelay))
	}
	opts = append(opts, p.dispatchOpts...)

	d := transcribe.NewDispatcher(p.provider, opts...)
	frags, err := d.Dispatch(ctx, tok.Done(), chunks, tr.counter(StageTranscribe))
	p.metrics.ObserveStage(StageTranscribe, start)
	return frags, err
}

func (p *Pipeline) cancelled(res Result, stage string) (Result, error) {
	res.Cancelled = true
	p.metrics.SetCancelled(true)
	p.log.Info().Str(logging.FieldStage, stage).Str(logging.FieldJobID, res.JobID).Msg("job cancelled")
	return res, nil
}

// isCancel reports whether err ends the job as a cancellation.
func isCancel(ctx context.Context, err error) bool {
	return errors.Is(err, transcribe.ErrStopped) ||
		errors.Is(err, context.Canceled) ||
		ctx.Err() != nil
}

func chunksExist(chunks []chunk.Chunk) bool {
	for _, c := range chunks {
		st, err := os.Stat(c.Path)
		if err != nil || st.Size() < c.Offset+c.Length {
			return false
		}
	}
	return true
}

// discardStore backs journals when checkpoints are disabled.
type discardStore struct{}

func (discardStore) Load(context.Context, string) (*checkpoint.State, error) { return nil, nil }
func (discardStore) Save(context.Context, *checkpoint.State) error           { return nil }
func (discardStore) Delete(context.Context, string) error                    { return nil }

func (r Result) String() string {
	if r.Cancelled {
		return fmt.Sprintf("cancelled after %d/%d chunks", r.Done, r.Total)
	}
	return fmt.Sprintf("%d chunks, %d overlap trims (%s)", r.Total, len(r.Trims), r.Plan.Kind)
}
