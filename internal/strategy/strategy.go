// Package strategy decides how a recording is prepared for a provider:
// sent as is, compressed, split by time, or split by bytes.
//
// Select is a pure function of its Input. The same input always yields the
// same Plan, which makes plans safe to use as part of a checkpoint key.
package strategy

import (
	"fmt"
	"math"

	"github.com/alnah/go-chunkscribe/internal/compress"
	"github.com/alnah/go-chunkscribe/internal/format"
	"github.com/alnah/go-chunkscribe/internal/provider"
)

// Kind names a processing plan.
type Kind string

const (
	Direct                Kind = "direct"
	Compress              Kind = "compress"
	CompressBinaryChunk   Kind = "compress+binary-chunk"
	TemporalChunk         Kind = "temporal-chunk"
	TemporalChunkFallback Kind = "temporal-chunk-fallback"
	ExtractAudio          Kind = "extract-audio"
)

// Input is everything the decision depends on.
type Input struct {
	Provider        provider.Provider
	SizeBytes       int64
	DurationMinutes float64
	IsContainer     bool
	IsVideo         bool
}

// Plan is the selected strategy.
type Plan struct {
	Kind     Kind
	Provider provider.Provider
	// Profile is the compression target for compressing kinds.
	Profile        compress.Profile
	ChunkMinutes   float64
	OverlapSeconds float64
	// MaxChunkBytes bounds each dispatched payload; 0 means no splitting.
	MaxChunkBytes int64
	// FallbackKind is what runs if the temporal chunker fails.
	FallbackKind Kind
	Reason       string
}

// Compresses reports whether the plan runs the compression engine first.
func (p Plan) Compresses() bool {
	switch p.Kind {
	case Compress, CompressBinaryChunk, TemporalChunkFallback, ExtractAudio:
		return true
	}
	return false
}

// BinarySplits reports whether the compressed output may be split by bytes.
func (p Plan) BinarySplits() bool {
	switch p.Kind {
	case CompressBinaryChunk, TemporalChunkFallback:
		return true
	case ExtractAudio:
		return p.MaxChunkBytes > 0
	}
	return false
}

// Overlaps reports whether adjacent fragments share audio and need
// overlap resolution.
func (p Plan) Overlaps() bool {
	return p.Kind == TemporalChunk && p.OverlapSeconds > 0
}

// HasFallback reports whether Fallback yields a different plan.
func (p Plan) HasFallback() bool {
	return p.FallbackKind != ""
}

// Fallback returns the plan to run after a temporal chunking failure:
// full re-encode to the speech profile, then byte splitting.
func (p Plan) Fallback() Plan {
	if !p.HasFallback() {
		return p
	}
	l := LimitsFor(p.Provider)
	return Plan{
		Kind:          TemporalChunkFallback,
		Provider:      p.Provider,
		Profile:       l.Speech,
		MaxChunkBytes: l.MaxBytes,
		Reason:        "temporal chunking failed; re-encoding then splitting by bytes",
	}
}

// String renders a one-line summary.
func (p Plan) String() string {
	s := string(p.Kind)
	if p.Compresses() {
		s += " @ " + p.Profile.String()
	}
	if p.Kind == TemporalChunk {
		s += fmt.Sprintf(" (%gmin chunks, %gs overlap)", p.ChunkMinutes, p.OverlapSeconds)
	}
	if p.MaxChunkBytes > 0 {
		s += " max " + format.Size(p.MaxChunkBytes)
	}
	return s
}

// Select picks exactly one plan for in.
func Select(in Input) Plan {
	prov := in.Provider.OrDefault()
	l := LimitsFor(prov)
	minutes := in.DurationMinutes
	known := minutes > 0 && !math.IsNaN(minutes) && !math.IsInf(minutes, 0)
	withinSize := in.SizeBytes <= l.MaxBytes
	withinDuration := l.DirectMaxMinutes == 0 || (known && minutes <= l.DirectMaxMinutes)

	plan := Plan{Provider: prov}

	switch {
	case in.IsVideo:
		plan.Kind = ExtractAudio
		plan.Profile = l.Video
		plan.Reason = "video input: extracting the audio track"
		if known && l.Video.EstimateBytes(minutes*60) > l.MaxBytes {
			plan.MaxChunkBytes = l.MaxBytes
			plan.Reason += "; extracted audio is expected to exceed the size limit"
		}

	case !known:
		plan.Kind = Direct
		plan.Reason = "duration unknown: sending as is"

	case withinSize && withinDuration:
		plan.Kind = Direct
		plan.Reason = "within provider limits"

	case !in.IsContainer:
		plan.Kind = Compress
		plan.Profile = l.Speech
		plan.Reason = "simple format above limits: compressing"
		switch {
		case l.Speech.EstimateBytes(minutes*60) > l.MaxBytes:
			plan.Kind = CompressBinaryChunk
			plan.MaxChunkBytes = l.MaxBytes
			plan.Reason = "simple format still too large after compression: compressing then splitting by bytes"
		case !withinDuration:
			// Byte pieces sized so each stays under the duration cap.
			plan.Kind = CompressBinaryChunk
			plan.MaxChunkBytes = min(l.MaxBytes, l.Speech.EstimateBytes(l.DirectMaxMinutes*60))
			plan.Reason = "simple format longer than the provider accepts: compressing then splitting by bytes"
		}

	case minutes < l.ChunkThresholdMinutes:
		if withinSize {
			plan.Kind = Direct
			plan.Reason = "container below chunking threshold and within size limit"
		} else {
			plan.Kind = Compress
			plan.Profile = l.Speech
			plan.Reason = "container below chunking threshold: compressing"
		}

	default:
		plan.Kind = TemporalChunk
		plan.ChunkMinutes = l.ChunkMinutes
		plan.OverlapSeconds = l.OverlapSeconds
		plan.Profile = l.Speech
		plan.MaxChunkBytes = l.MaxBytes
		plan.FallbackKind = CompressBinaryChunk
		plan.Reason = "long container recording: splitting by time"
	}
	return plan
}
