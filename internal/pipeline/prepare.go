package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alnah/go-chunkscribe/internal/chunk"
	"github.com/alnah/go-chunkscribe/internal/compress"
	"github.com/alnah/go-chunkscribe/internal/media"
	"github.com/alnah/go-chunkscribe/internal/strategy"
	"github.com/alnah/go-chunkscribe/internal/transcribe"
)

// prepare turns the source into chunks following plan. When temporal
// chunking fails it retries once with plan.Fallback() and returns the plan
// that actually ran.
func (p *Pipeline) prepare(
	ctx context.Context,
	tok *Token,
	tr *tracker,
	src media.Source,
	info media.Info,
	plan strategy.Plan,
	dir string,
) ([]chunk.Chunk, strategy.Plan, error) {
	chunks, err := p.cut(ctx, tok, tr, src, info, plan, dir)
	if err == nil || !plan.HasFallback() || isCancel(ctx, err) {
		return chunks, plan, err
	}
	if !errors.Is(err, chunk.ErrChunkTooLarge) && !errors.Is(err, chunk.ErrChunkingFailed) {
		return nil, plan, err
	}

	fb := plan.Fallback()
	p.metrics.RecordFallback()
	p.log.Warn().Err(err).Stringer("plan", fb).Msg("temporal chunking failed, falling back")
	chunks, err = p.cut(ctx, tok, tr, src, info, fb, dir)
	return chunks, fb, err
}

func (p *Pipeline) cut(
	ctx context.Context,
	tok *Token,
	tr *tracker,
	src media.Source,
	info media.Info,
	plan strategy.Plan,
	dir string,
) ([]chunk.Chunk, error) {
	if tok.Stopped() {
		return nil, transcribe.ErrStopped
	}
	switch {
	case plan.Kind == strategy.TemporalChunk:
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, stageErr(StageChunk, fmt.Errorf("create chunk directory: %w", err))
		}
		start := time.Now()
		chunks, err := p.c.Temporal.Chunk(ctx, src, info, chunk.Options{
			ChunkSeconds:   plan.ChunkMinutes * 60,
			OverlapSeconds: plan.OverlapSeconds,
			MaxChunkBytes:  plan.MaxChunkBytes,
			BitrateKbps:    plan.Profile.BitrateKbps,
			OutDir:         dir,
			Progress:       tr.counter(StageChunk),
		})
		if err != nil {
			return nil, stageErr(StageChunk, err)
		}
		p.metrics.ObserveStage(StageChunk, start)
		tr.report(StageChunk, 1)
		return chunks, nil

	case plan.Compresses():
		return p.compressAndSplit(ctx, tok, tr, src, info, plan, dir)

	default:
		tr.report(StageChunk, 1)
		return []chunk.Chunk{chunk.Whole(src, info)}, nil
	}
}

// compressAndSplit re-encodes src and splits the result by bytes when it
// is still above the provider limit.
func (p *Pipeline) compressAndSplit(
	ctx context.Context,
	tok *Token,
	tr *tracker,
	src media.Source,
	info media.Info,
	plan strategy.Plan,
	dir string,
) ([]chunk.Chunk, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, stageErr(StageCompress, fmt.Errorf("create chunk directory: %w", err))
	}

	start := time.Now()
	out := filepath.Join(dir, compressedName)
	res, err := p.c.Compressor.Compress(ctx, compress.Input{
		Path:            src.Path,
		SizeBytes:       src.Size,
		DurationSeconds: info.DurationSeconds,
		Channels:        info.Channels,
	}, plan.Profile, out, tr.stage(StageCompress))
	if err != nil {
		return nil, stageErr(StageCompress, err)
	}
	p.metrics.ObserveStage(StageCompress, start)
	p.metrics.SetCompressionRatio(res.Ratio)
	tr.report(StageCompress, 1)

	if tok.Stopped() {
		return nil, transcribe.ErrStopped
	}

	csrc, err := media.Open(res.Path, "audio/mpeg")
	if err != nil {
		return nil, stageErr(StageCompress, err)
	}
	csrc = csrc.WithDuration(res.DurationSeconds)
	cinfo := media.Info{
		DurationSeconds: res.DurationSeconds,
		AudioCodec:      "mp3",
		Channels:        1,
		SampleRate:      plan.Profile.SampleRate,
		BitrateKbps:     plan.Profile.BitrateKbps,
	}

	maxBytes := plan.MaxChunkBytes
	if maxBytes <= 0 {
		maxBytes = strategy.LimitsFor(plan.Provider).MaxBytes
	}
	if csrc.Size <= maxBytes {
		tr.report(StageChunk, 1)
		return []chunk.Chunk{chunk.Whole(csrc, cinfo)}, nil
	}

	start = time.Now()
	chunks, err := p.c.Binary.Chunk(csrc, maxBytes)
	if err != nil {
		return nil, stageErr(StageChunk, err)
	}
	p.metrics.ObserveStage(StageChunk, start)
	tr.report(StageChunk, 1)
	p.log.Debug().Int("chunks", len(chunks)).Int64("max_bytes", maxBytes).Msg("compressed output split by bytes")
	return chunks, nil
}
