// Package transcribe sends chunks to a remote speech-to-text provider and
// collects one Fragment per chunk.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alnah/go-chunkscribe/internal/format"
	"github.com/alnah/go-chunkscribe/internal/provider"
)

// ErrAPIKeyMissing indicates the provider's API key environment variable is not set.
var ErrAPIKeyMissing = errors.New("API key not set")

// ErrEmptyResult indicates a provider returned no text for a chunk.
var ErrEmptyResult = errors.New("empty transcription result")

// Granularity selects how much timing detail a provider should return.
type Granularity string

const (
	// GranularityNone asks for plain text.
	GranularityNone Granularity = ""
	// GranularitySegment asks for timed segments.
	GranularitySegment Granularity = "segment"
)

// Request is one transcription call.
type Request struct {
	Payload   io.Reader
	FileName  string
	MIMEType  string
	SizeBytes int64
	// Language is a BCP 47 tag; empty means auto-detect.
	Language    string
	Granularity Granularity
}

// Segment is a timed piece of a provider response, relative to the payload.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Response is a provider's answer for one Request.
type Response struct {
	Text     string
	Segments []Segment
	Tokens   int
}

// Provider transcribes one payload.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (Response, error)
}

// New builds the Provider for p. apiKey must be non-empty.
func New(p provider.Provider, apiKey string) (Provider, error) {
	p = p.OrDefault()
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %w", p.APIKeyEnv(), ErrAPIKeyMissing)
	}
	switch p {
	case provider.Gemini:
		return NewGemini(apiKey), nil
	case provider.Groq:
		return NewGroq(apiKey), nil
	default:
		return NewOpenAI(apiKey), nil
	}
}

// RenderSegments formats segments as "[MM:SS] text" lines.
// Segments with blank text are skipped.
func RenderSegments(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s", format.Marker(int(seg.Start)), text)
	}
	return b.String()
}
