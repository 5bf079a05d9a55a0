package strategy

import (
	"github.com/alnah/go-chunkscribe/internal/compress"
	"github.com/alnah/go-chunkscribe/internal/provider"
)

// DispatchMode tells the dispatcher whether chunks may be sent concurrently.
type DispatchMode string

const (
	Sequential DispatchMode = "sequential"
	Parallel   DispatchMode = "parallel"
)

// MB is 10^6 bytes, the unit providers state their limits in.
const MB = 1_000_000

// GeminiRequestBytes caps a whole generateContent request body. Gemini
// receives audio inline as base64, so its raw payload limit is the
// InlineBudget of this size.
const GeminiRequestBytes = 20 * MB

// geminiPromptReserve covers the prompt text and JSON framing.
const geminiPromptReserve = 64 * 1024

// InlineBudget returns the largest raw payload whose base64 encoding plus
// reserve bytes fits in requestBytes.
func InlineBudget(requestBytes, reserve int64) int64 {
	if requestBytes <= reserve {
		return 0
	}
	return (requestBytes - reserve) / 4 * 3
}

// Limits are the per-provider constraints driving plan selection.
type Limits struct {
	MaxBytes int64
	// DirectMaxMinutes is 0 when the provider has no duration cap.
	DirectMaxMinutes      float64
	ChunkThresholdMinutes float64
	ChunkMinutes          float64
	OverlapSeconds        float64
	Speech                compress.Profile
	Video                 compress.Profile
	Mode                  DispatchMode
	MaxParallel           int
}

var limits = map[provider.Provider]Limits{
	provider.Gemini: {
		MaxBytes:              InlineBudget(GeminiRequestBytes, geminiPromptReserve),
		DirectMaxMinutes:      30,
		ChunkThresholdMinutes: 30,
		ChunkMinutes:          20,
		OverlapSeconds:        30,
		Speech:                compress.Speech,
		Video:                 compress.HighQuality,
		Mode:                  Parallel,
		MaxParallel:           4,
	},
	provider.Groq: {
		MaxBytes:              25 * MB,
		ChunkThresholdMinutes: 30,
		ChunkMinutes:          10,
		OverlapSeconds:        30,
		Speech:                compress.Speech,
		Video:                 compress.Profile{SampleRate: 16000, BitrateKbps: 64},
		Mode:                  Sequential,
		MaxParallel:           1,
	},
	provider.OpenAI: {
		MaxBytes:              25 * MB,
		ChunkThresholdMinutes: 30,
		ChunkMinutes:          10,
		OverlapSeconds:        30,
		Speech:                compress.Speech,
		Video:                 compress.Profile{SampleRate: 16000, BitrateKbps: 64},
		Mode:                  Parallel,
		MaxParallel:           10,
	},
}

// LimitsFor returns the limits for p, defaulting unset providers.
func LimitsFor(p provider.Provider) Limits {
	return limits[p.OrDefault()]
}
