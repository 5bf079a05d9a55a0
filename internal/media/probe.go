package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
	"github.com/jfreymuth/oggvorbis"
	"github.com/rs/zerolog"

	"github.com/alnah/go-chunkscribe/internal/ffmpeg"
)

// defaultDecodeLimit caps the file size for which a full decode is
// attempted to recover an unknown duration.
const defaultDecodeLimit = 200 * 1024 * 1024

// Info is the prober result.
type Info struct {
	DurationSeconds float64
	IsContainer     bool
	IsVideo         bool
	AudioCodec      string
	Channels        int
	SampleRate      int
	BitrateKbps     int
	// Exact is true when the duration came from a full decode.
	Exact bool
}

// DurationMinutes is DurationSeconds / 60.
func (i Info) DurationMinutes() float64 {
	return i.DurationSeconds / 60
}

// sessionRunner is the part of ffmpeg.Engine the prober needs.
type sessionRunner interface {
	Session(ctx context.Context, fn func(*ffmpeg.Session) error) error
}

// Prober extracts duration and stream details from a Source.
type Prober struct {
	engine      sessionRunner
	decodeLimit int64
	log         zerolog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithDecodeLimit overrides the full-decode size cap.
func WithDecodeLimit(n int64) ProberOption {
	return func(p *Prober) { p.decodeLimit = n }
}

// WithLogger sets the prober logger.
func WithLogger(l zerolog.Logger) ProberOption {
	return func(p *Prober) { p.log = l }
}

// NewProber creates a Prober backed by the given engine.
func NewProber(engine sessionRunner, opts ...ProberOption) *Prober {
	p := &Prober{
		engine:      engine,
		decodeLimit: defaultDecodeLimit,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns duration and container class for src. An unknown duration
// is reported as 0 without error; only I/O failures and cancellation fail.
func (p *Prober) Probe(ctx context.Context, src Source) (Info, error) {
	info := Info{
		DurationSeconds: math.NaN(),
		IsContainer:     IsContainer(src.Name, src.MIMEType),
		IsVideo:         IsVideo(src.Name, src.MIMEType),
	}

	err := p.engine.Session(ctx, func(s *ffmpeg.Session) error {
		out, err := s.Probe(ctx, "-v", "error", "-show_format", "-show_streams", "-of", "json", src.Path)
		switch {
		case err == nil:
			perr := applyProbeJSON(out, &info)
			if perr == nil {
				return nil
			}
			p.log.Debug().Err(perr).Msg("ffprobe output unusable")
		case ctx.Err() != nil:
			return ctx.Err()
		case !errors.Is(err, ffmpeg.ErrProbeUnavailable):
			p.log.Debug().Err(err).Msg("ffprobe failed, parsing ffmpeg banner")
		}

		banner, _ := s.Inspect(ctx, "-i", src.Path)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		applyBanner(banner, &info)
		return nil
	})
	if err != nil {
		return Info{}, fmt.Errorf("probe %s: %w", src.Name, err)
	}

	if !KnownDuration(info.DurationSeconds) && src.Size <= p.decodeLimit {
		d, err := p.decodeDuration(ctx, src)
		if ctx.Err() != nil {
			return Info{}, ctx.Err()
		}
		if err != nil {
			p.log.Debug().Err(err).Str("file", src.Name).Msg("full decode did not yield a duration")
		} else {
			info.DurationSeconds = d
			info.Exact = true
		}
	}

	if !KnownDuration(info.DurationSeconds) {
		p.log.Warn().Str("file", src.Name).Msg("duration unknown, treating as 0")
		info.DurationSeconds = 0
	}
	if info.BitrateKbps == 0 && info.DurationSeconds > 0 {
		info.BitrateKbps = int(float64(src.Size*8) / info.DurationSeconds / 1000)
	}
	return info, nil
}

// decodeDuration walks the whole stream to measure it.
func (p *Prober) decodeDuration(ctx context.Context, src Source) (float64, error) {
	switch {
	case IsWAV(src.Name, src.MIMEType):
		return wavDuration(src.Path)
	case IsOgg(src.Name, src.MIMEType):
		if d, err := oggDuration(src.Path); err == nil {
			return d, nil
		}
		// Ogg Opus is not Vorbis; let ffmpeg decode it.
	}

	var d float64
	err := p.engine.Session(ctx, func(s *ffmpeg.Session) error {
		out, _ := s.Inspect(ctx, "-i", src.Path, "-vn", "-f", "null", "-")
		var ok bool
		d, ok = lastProgressTime(out)
		if !ok {
			return errors.New("no progress time in decoder output")
		}
		return nil
	})
	return d, err
}

func wavDuration(path string) (float64, error) {
	f, err := os.Open(path) // #nosec G304 -- user-selected input file
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.New("invalid WAV file")
	}
	dur, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("wav duration: %w", err)
	}
	return dur.Seconds(), nil
}

func oggDuration(path string) (float64, error) {
	f, err := os.Open(path) // #nosec G304 -- user-selected input file
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	samples, format, err := oggvorbis.GetLength(f)
	if err != nil {
		return 0, fmt.Errorf("ogg length: %w", err)
	}
	if format == nil || format.SampleRate <= 0 {
		return 0, errors.New("ogg stream has no sample rate")
	}
	return float64(samples) / float64(format.SampleRate), nil
}

// ---------------------------------------------------------------------------
// ffprobe JSON
// ---------------------------------------------------------------------------

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Channels    int    `json:"channels"`
		SampleRate  string `json:"sample_rate"`
		Duration    string `json:"duration"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

func applyProbeJSON(data []byte, info *Info) error {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode ffprobe json: %w", err)
	}

	hasAudio, hasVideo := false, false
	streamDuration := math.NaN()
	for _, st := range out.Streams {
		switch st.CodecType {
		case "audio":
			if hasAudio {
				continue
			}
			hasAudio = true
			info.AudioCodec = st.CodecName
			info.Channels = st.Channels
			info.SampleRate, _ = strconv.Atoi(st.SampleRate)
			streamDuration = parseFloat(st.Duration)
		case "video":
			if st.Disposition.AttachedPic == 0 {
				hasVideo = true
			}
		}
	}
	if !hasAudio && !hasVideo {
		return errors.New("no audio or video streams")
	}

	info.IsVideo = hasVideo
	info.DurationSeconds = parseFloat(out.Format.Duration)
	if !KnownDuration(info.DurationSeconds) {
		info.DurationSeconds = streamDuration
	}
	if br := parseFloat(out.Format.BitRate); br > 0 {
		info.BitrateKbps = int(br / 1000)
	}
	return nil
}

func parseFloat(s string) float64 {
	if s == "" || s == "N/A" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ---------------------------------------------------------------------------
// ffmpeg banner parsing
// ---------------------------------------------------------------------------

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)(?:\.(\d+))?`)
	timeRe     = regexp.MustCompile(`time=(\d+):(\d+):(\d+)(?:\.(\d+))?`)
	audioRe    = regexp.MustCompile(`Stream #\S+.*?: Audio: (\w+)[^,\n]*(?:, (\d+) Hz)?(?:, (mono|stereo|[\d.]+ channels|5\.1))?`)
	videoRe    = regexp.MustCompile(`Stream #\S+.*?: Video: [^\n]*`)
	bitrateRe  = regexp.MustCompile(`bitrate:\s*(\d+) kb/s`)
)

func applyBanner(out string, info *Info) {
	if m := durationRe.FindStringSubmatch(out); m != nil {
		info.DurationSeconds = clockSeconds(m[1], m[2], m[3], m[4])
	}
	if m := audioRe.FindStringSubmatch(out); m != nil {
		info.AudioCodec = m[1]
		info.SampleRate, _ = strconv.Atoi(m[2])
		info.Channels = channelCount(m[3])
	}
	if videos := videoRe.FindAllString(out, -1); videos != nil {
		info.IsVideo = false
		for _, v := range videos {
			if !strings.Contains(v, "attached pic") {
				info.IsVideo = true
			}
		}
	}
	if m := bitrateRe.FindStringSubmatch(out); m != nil {
		info.BitrateKbps, _ = strconv.Atoi(m[1])
	}
}

// lastProgressTime returns the final time= stamp ffmpeg printed.
func lastProgressTime(out string) (float64, bool) {
	all := timeRe.FindAllStringSubmatch(out, -1)
	if len(all) == 0 {
		return 0, false
	}
	m := all[len(all)-1]
	d := clockSeconds(m[1], m[2], m[3], m[4])
	return d, d > 0
}

// clockSeconds converts HH, MM, SS and an optional fraction to seconds.
func clockSeconds(hours, minutes, seconds, fractional string) float64 {
	h, _ := strconv.Atoi(hours)
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)
	total := float64(h*3600 + m*60 + s)
	if fractional != "" {
		if f, err := strconv.ParseFloat("0."+fractional, 64); err == nil {
			total += f
		}
	}
	return total
}

func channelCount(layout string) int {
	switch {
	case layout == "mono":
		return 1
	case layout == "stereo":
		return 2
	case layout == "5.1":
		return 6
	case strings.HasSuffix(layout, " channels"):
		n, _ := strconv.Atoi(strings.TrimSuffix(layout, " channels"))
		return n
	}
	return 0
}
