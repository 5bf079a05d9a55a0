// Package compress re-encodes recordings into small mono MP3 files suited
// for speech recognition.
//
// ffmpeg decodes the source to interleaved float PCM on a pipe. The pump
// here averages the channels to mono, quantizes to 16-bit and streams the
// result into a second ffmpeg process that encodes MP3.
package compress

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-chunkscribe/internal/ffmpeg"
)

// ErrDecode indicates the source could not be decoded, or decoded to no
// audio at all. It is fatal and never retried.
var ErrDecode = errors.New("decode failed")

const (
	// frameSamples is the per-channel sample count read per step (one MP3 frame).
	frameSamples = 1152
	// progressEvery is the number of frames between progress reports.
	progressEvery = 64
	// defaultChannels is assumed when the prober could not tell.
	defaultChannels = 2
	outputName      = "compressed.mp3"
)

// Profile is a target sample rate and bitrate.
type Profile struct {
	SampleRate  int
	BitrateKbps int
}

// Presets.
var (
	Speech      = Profile{SampleRate: 16000, BitrateKbps: 32}
	HighQuality = Profile{SampleRate: 44100, BitrateKbps: 96}
)

// String renders the profile as "16kHz/32kbps".
func (p Profile) String() string {
	return fmt.Sprintf("%gkHz/%dkbps", float64(p.SampleRate)/1000, p.BitrateKbps)
}

// EstimateBytes predicts the encoded size for a duration.
func (p Profile) EstimateBytes(durationSeconds float64) int64 {
	return int64(durationSeconds * float64(p.BitrateKbps) * 1000 / 8)
}

// Input describes the file to compress.
type Input struct {
	Path            string
	SizeBytes       int64
	DurationSeconds float64
	Channels        int
}

// Result describes the compressed file.
type Result struct {
	Path            string
	DurationSeconds float64
	SizeBytes       int64
	// Ratio is input size over output size.
	Ratio float64
}

// ProgressFunc receives a fraction in [0,1].
type ProgressFunc func(fraction float64)

// sessionRunner is the part of ffmpeg.Engine the compressor needs.
type sessionRunner interface {
	Session(ctx context.Context, fn func(*ffmpeg.Session) error) error
}

// Compressor runs the decode, downmix and encode pipeline.
type Compressor struct {
	engine sessionRunner
	log    zerolog.Logger
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithLogger sets the compressor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Compressor) { c.log = l }
}

// New creates a Compressor.
func New(engine sessionRunner, opts ...Option) *Compressor {
	c := &Compressor{engine: engine, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress encodes in to a mono MP3 at prof and moves it to outPath.
func (c *Compressor) Compress(ctx context.Context, in Input, prof Profile, outPath string, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	channels := in.Channels
	if channels <= 0 {
		channels = defaultChannels
	}

	var samples int64
	err := c.engine.Session(ctx, func(s *ffmpeg.Session) error {
		var err error
		samples, err = c.run(ctx, s, in, prof, channels, progress)
		if err != nil {
			return err
		}
		return s.Keep(outputName, outPath)
	})
	if err != nil {
		return Result{}, err
	}

	st, err := os.Stat(outPath)
	if err != nil {
		return Result{}, fmt.Errorf("stat compressed output: %w", err)
	}
	res := Result{
		Path:            outPath,
		DurationSeconds: float64(samples) / float64(prof.SampleRate),
		SizeBytes:       st.Size(),
	}
	if st.Size() > 0 {
		res.Ratio = float64(in.SizeBytes) / float64(st.Size())
	}
	progress(1)

	c.log.Info().
		Str("profile", prof.String()).
		Int64("in_bytes", in.SizeBytes).
		Int64("out_bytes", res.SizeBytes).
		Float64("ratio", res.Ratio).
		Msg("compressed")
	return res, nil
}

const (
	sideDecode int32 = iota + 1
	sideEncode
)

// run wires decoder -> pump -> encoder and returns the mono sample count.
func (c *Compressor) run(ctx context.Context, s *ffmpeg.Session, in Input, prof Profile, channels int, progress ProgressFunc) (int64, error) {
	rate := strconv.Itoa(prof.SampleRate)
	decR, decW := io.Pipe()
	encR, encW := io.Pipe()

	var (
		decodeErr, encodeErr error
		written              atomic.Int64
		// firstFailed is the side whose ffmpeg died first; the other side
		// usually fails next on the broken pipe.
		firstFailed atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := s.Pipe(gctx, nil, decW,
			"-i", in.Path, "-vn",
			"-f", "f32le", "-acodec", "pcm_f32le",
			"-ar", rate, "-ac", strconv.Itoa(channels),
			"pipe:1")
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				decodeErr = err
				firstFailed.CompareAndSwap(0, sideDecode)
			}
			_ = decW.CloseWithError(err)
			return err
		}
		return decW.Close()
	})

	g.Go(func() error {
		expected := in.DurationSeconds * float64(prof.SampleRate)
		n, err := pump(decR, encW, channels, func(done int64) {
			written.Store(done)
			if expected > 0 {
				progress(math.Min(float64(done)/expected, 0.99))
			}
		})
		written.Store(n)
		if err == nil && n == 0 {
			err = fmt.Errorf("%w: no audio samples in %s", ErrDecode, in.Path)
		}
		if err != nil {
			_ = decR.CloseWithError(err)
			_ = encW.CloseWithError(err)
			return err
		}
		return encW.Close()
	})

	g.Go(func() error {
		_, err := s.Pipe(gctx, encR, nil,
			"-f", "s16le", "-ar", rate, "-ac", "1", "-i", "pipe:0",
			"-c:a", "libmp3lame", "-b:a", strconv.Itoa(prof.BitrateKbps)+"k",
			s.Path(outputName))
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				encodeErr = err
				firstFailed.CompareAndSwap(0, sideEncode)
			}
			_ = encR.CloseWithError(err)
			return err
		}
		return nil
	})

	waitErr := g.Wait()
	n := written.Load()

	switch {
	case ctx.Err() != nil:
		return 0, ctx.Err()
	case firstFailed.Load() == sideEncode:
		return 0, fmt.Errorf("encode mp3: %w", encodeErr)
	case decodeErr != nil:
		return 0, fmt.Errorf("%w: %s", ErrDecode, decodeErr.Error())
	case n == 0:
		return 0, fmt.Errorf("%w: no audio samples in %s", ErrDecode, in.Path)
	case encodeErr != nil:
		return 0, fmt.Errorf("encode mp3: %w", encodeErr)
	case waitErr != nil:
		return 0, waitErr
	}
	return n, nil
}

// pump reads interleaved f32le frames from r, downmixes to mono s16le and
// writes them to w. report is called every progressEvery frames with the
// number of mono samples written so far.
func pump(r io.Reader, w io.Writer, channels int, report func(int64)) (int64, error) {
	in := make([]byte, frameSamples*channels*4)
	out := make([]byte, frameSamples*2)
	mono := make([]int16, frameSamples)

	var total int64
	for frame := 1; ; frame++ {
		n, err := io.ReadFull(r, in)
		whole := n / (channels * 4)
		if whole > 0 {
			downmix(in[:whole*channels*4], channels, mono[:whole])
			for i, v := range mono[:whole] {
				binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
			}
			if _, werr := w.Write(out[:whole*2]); werr != nil {
				return total, fmt.Errorf("write pcm: %w", werr)
			}
			total += int64(whole)
		}
		if frame%progressEvery == 0 && report != nil {
			report(total)
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return total, nil
		default:
			return total, err
		}
	}
}

// downmix averages interleaved little-endian float32 samples across
// channels, clamps to [-1,1] and quantizes to int16.
func downmix(src []byte, channels int, dst []int16) {
	for i := range dst {
		var sum float64
		base := i * channels * 4
		for c := range channels {
			bits := binary.LittleEndian.Uint32(src[base+c*4:])
			sum += float64(math.Float32frombits(bits))
		}
		v := sum / float64(channels)
		if math.IsNaN(v) {
			v = 0
		}
		v = max(-1, min(1, v))
		dst[i] = int16(math.Round(v * math.MaxInt16))
	}
}
