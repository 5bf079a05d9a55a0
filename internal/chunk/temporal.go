package chunk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alnah/go-chunkscribe/internal/ffmpeg"
	"github.com/alnah/go-chunkscribe/internal/format"
	"github.com/alnah/go-chunkscribe/internal/media"
)

// defaultReencodeKbps is used for codecs that cannot be stream-copied
// when the caller gives no bitrate.
const defaultReencodeKbps = 64

// Options configures a temporal cut.
type Options struct {
	ChunkSeconds   float64
	OverlapSeconds float64
	// MaxChunkBytes rejects oversized output when positive.
	MaxChunkBytes int64
	// BitrateKbps is the MP3 bitrate for codecs on the deny list.
	BitrateKbps int
	// OutDir receives the chunk files. It must outlive the call.
	OutDir string
	// Progress is called after each chunk with done/total.
	Progress func(done, total int)
}

// sessionRunner is the part of ffmpeg.Engine the chunker needs.
type sessionRunner interface {
	Session(ctx context.Context, fn func(*ffmpeg.Session) error) error
}

// TemporalChunker cuts a recording into overlapping time windows.
type TemporalChunker struct {
	engine sessionRunner
	log    zerolog.Logger
}

// TemporalOption configures a TemporalChunker.
type TemporalOption func(*TemporalChunker)

// WithLogger sets the chunker logger.
func WithLogger(l zerolog.Logger) TemporalOption {
	return func(c *TemporalChunker) { c.log = l }
}

// NewTemporalChunker creates a TemporalChunker.
func NewTemporalChunker(engine sessionRunner, opts ...TemporalOption) *TemporalChunker {
	c := &TemporalChunker{engine: engine, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk cuts src along Windows(duration, ChunkSeconds, OverlapSeconds).
// A single window yields the source itself as one whole-file chunk.
// A stream-copied window above MaxChunkBytes is cut again as MP3 at
// BitrateKbps; ErrChunkTooLarge is returned only if that is still too big.
func (c *TemporalChunker) Chunk(ctx context.Context, src media.Source, info media.Info, opts Options) ([]Chunk, error) {
	windows := Windows(info.DurationSeconds, opts.ChunkSeconds, opts.OverlapSeconds)
	ext, copyOK := copyExt(info.AudioCodec)
	codec := cutCodec{ext: ext, args: []string{"-c", "copy"}, copy: true}
	if !copyOK {
		codec = reencode(opts.BitrateKbps)
	}

	if len(windows) == 1 {
		ch := Whole(src, info)
		if opts.MaxChunkBytes <= 0 || ch.Size() <= opts.MaxChunkBytes {
			return []Chunk{ch}, nil
		}
		if !media.KnownDuration(info.DurationSeconds) {
			return nil, fmt.Errorf("%w: %s is %s", ErrChunkTooLarge, src.Name, format.Size(ch.Size()))
		}
		codec = reencode(opts.BitrateKbps)
	}

	if opts.OutDir == "" {
		return nil, fmt.Errorf("%w: no output directory", ErrChunkingFailed)
	}

	log := c.log.With().Str("file", src.Name).Int("windows", len(windows)).Bool("copy", codec.copy).Logger()
	log.Debug().Float64("chunk_s", opts.ChunkSeconds).Float64("overlap_s", opts.OverlapSeconds).Msg("cutting")

	chunks := make([]Chunk, 0, len(windows))
	err := c.engine.Session(ctx, func(s *ffmpeg.Session) error {
		for i, w := range windows {
			if err := ctx.Err(); err != nil {
				return err
			}

			cc := codec
			name, size, err := cutWindow(ctx, s, src.Path, i, w, cc)
			if err != nil {
				return err
			}
			if opts.MaxChunkBytes > 0 && size > opts.MaxChunkBytes && cc.copy {
				log.Debug().Int("window", i).Int64("bytes", size).Msg("copied window over the size limit, re-encoding")
				cc = reencode(opts.BitrateKbps)
				if name, size, err = cutWindow(ctx, s, src.Path, i, w, cc); err != nil {
					return err
				}
			}
			if opts.MaxChunkBytes > 0 && size > opts.MaxChunkBytes {
				return fmt.Errorf("%w: %s is %s (limit %s)", ErrChunkTooLarge,
					name, format.Size(size), format.Size(opts.MaxChunkBytes))
			}

			dest := filepath.Join(opts.OutDir, name)
			if err := s.Keep(name, dest); err != nil {
				return fmt.Errorf("%w: %w", ErrChunkingFailed, err)
			}
			ch := Chunk{
				Index:     i,
				Path:      dest,
				Length:    size,
				StartTime: w.Start,
				EndTime:   w.End,
				Format:    cc.ext,
				Timing:    TimingExact,
			}
			chunks = append(chunks, ch)

			if opts.Progress != nil {
				opts.Progress(i+1, len(windows))
			}
			log.Debug().Stringer("chunk", ch).Int64("bytes", size).Bool("copy", cc.copy).Msg("chunk written")
		}
		return nil
	})
	if err != nil {
		if rmErr := Remove(chunks, opts.OutDir); rmErr != nil {
			log.Warn().Err(rmErr).Msg("partial chunk cleanup failed")
		}
		return nil, err
	}
	return chunks, nil
}

// cutCodec is the output side of one ffmpeg cut.
type cutCodec struct {
	ext  string
	args []string
	copy bool
}

func reencode(kbps int) cutCodec {
	if kbps <= 0 {
		kbps = defaultReencodeKbps
	}
	return cutCodec{ext: "mp3", args: []string{"-c:a", "libmp3lame", "-b:a", strconv.Itoa(kbps) + "k"}}
}

// cutWindow writes window w of path into the session workspace and
// returns the file name and its size.
func cutWindow(ctx context.Context, s *ffmpeg.Session, path string, i int, w Window, cc cutCodec) (string, int64, error) {
	name := fmt.Sprintf("chunk_%03d.%s", i, cc.ext)
	args := []string{
		"-ss", format.Seconds(w.Start),
		"-t", format.Seconds(w.End - w.Start),
		"-i", path,
		"-map", "0:a:0", "-vn",
	}
	args = append(args, cc.args...)
	args = append(args, s.Path(name))

	if _, err := s.Run(ctx, args...); err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, fmt.Errorf("%w: window %d [%s-%s]: %w", ErrChunkingFailed, i,
			format.Seconds(w.Start), format.Seconds(w.End), err)
	}
	st, err := os.Stat(s.Path(name))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrChunkingFailed, err)
	}
	return name, st.Size(), nil
}

// Whole returns src as a single chunk. Its timing is unknown when info
// carries no usable duration.
func Whole(src media.Source, info media.Info) Chunk {
	timing := TimingExact
	end := info.DurationSeconds
	if !media.KnownDuration(end) {
		timing, end = TimingUnknown, 0
	}
	return Chunk{
		Index:   0,
		Path:    src.Path,
		Length:  src.Size,
		EndTime: end,
		Format:  strings.TrimPrefix(src.Ext(), "."),
		Timing:  timing,
	}
}
