// Package chunk splits recordings into pieces a provider accepts: by time
// windows through ffmpeg, or by byte ranges for simple formats.
package chunk

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-chunkscribe/internal/format"
)

// Timing tells whether a chunk's start and end times are known.
type Timing string

const (
	// TimingExact chunks were cut on the timeline.
	TimingExact Timing = "exact"
	// TimingUnknown chunks were cut by bytes; their times are 0/0.
	TimingUnknown Timing = "unknown"
)

// Chunk is one independently transcribable piece of a recording.
type Chunk struct {
	// Index defines the order of the final transcript.
	Index int `json:"index"`
	// Path holds the payload bytes in [Offset, Offset+Length).
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	// Header is prepended to the byte range (synthesized WAV headers).
	Header []byte `json:"header,omitempty"`
	// StartTime and EndTime are seconds on the original timeline.
	StartTime float64 `json:"start"`
	EndTime   float64 `json:"end"`
	// Format is the file extension without the dot.
	Format string `json:"format"`
	Timing Timing `json:"timing"`
}

// Size is the payload size in bytes, header included.
func (c Chunk) Size() int64 {
	return int64(len(c.Header)) + c.Length
}

// FileName is the name sent to the provider.
func (c Chunk) FileName() string {
	return fmt.Sprintf("chunk_%03d.%s", c.Index, c.Format)
}

// MIMEType guesses the payload type from Format.
func (c Chunk) MIMEType() string {
	switch c.Format {
	case "mp3", "mpga", "mpeg":
		return "audio/mpeg"
	case "m4a", "m4b":
		return "audio/mp4"
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	case "ogg", "oga", "opus":
		return "audio/ogg"
	}
	if t := mime.TypeByExtension("." + c.Format); t != "" {
		return t
	}
	return "application/octet-stream"
}

// String returns a human-readable representation for logging.
func (c Chunk) String() string {
	if c.Timing == TimingUnknown {
		return fmt.Sprintf("chunk %d: bytes %d-%d", c.Index, c.Offset, c.Offset+c.Length)
	}
	return fmt.Sprintf("chunk %d: %s-%s", c.Index,
		format.Marker(int(c.StartTime)), format.Marker(int(c.EndTime)))
}

// Open returns the payload stream: Header followed by the byte range.
func (c Chunk) Open() (io.ReadCloser, error) {
	f, err := os.Open(c.Path) // #nosec G304 -- chunk paths are built internally
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.FileName(), err)
	}
	body := io.NewSectionReader(f, c.Offset, c.Length)
	var r io.Reader = body
	if len(c.Header) > 0 {
		r = io.MultiReader(bytes.NewReader(c.Header), body)
	}
	return readCloser{Reader: r, Closer: f}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// Remove deletes the chunk files that live under dir. Chunks pointing
// elsewhere (a whole-file chunk on the source) are left alone.
func Remove(chunks []Chunk, dir string) error {
	if dir == "" {
		return nil
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	var firstErr error
	for _, c := range chunks {
		p, err := filepath.Abs(c.Path)
		if err != nil || !strings.HasPrefix(p, root+string(filepath.Separator)) {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
