package transcript

import (
	"strings"

	"github.com/rs/zerolog"
)

// Resolver tunables. Window bounds how many segments on each side of a
// boundary are compared. A duplicate needs a similarity strictly above
// Threshold and both normalized texts strictly longer than MinChars, which
// keeps short phrases ("okay", "thank you") from matching. MaxGapSeconds
// rejects matches whose markers are further apart than one overlap could
// explain.
const (
	DefaultWindow        = 5
	DefaultThreshold     = 0.85
	DefaultMinChars      = 20
	DefaultMaxGapSeconds = 120
)

// Trim records one accepted overlap trim.
type Trim struct {
	// Boundary is the index of the fragment that was trimmed.
	Boundary int     `json:"boundary"`
	Previous Segment `json:"previous"`
	Current  Segment `json:"current"`
	Score    float64 `json:"score"`
	// Dropped counts the leading segments removed from the fragment.
	Dropped int `json:"dropped"`
}

// Resolver removes speech duplicated across consecutive fragments.
type Resolver struct {
	Window        int
	Threshold     float64
	MinChars      int
	MaxGapSeconds int
	log           zerolog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger trims are reported to.
func WithLogger(l zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

// NewResolver returns a Resolver with the default tunables.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		Window:        DefaultWindow,
		Threshold:     DefaultThreshold,
		MinChars:      DefaultMinChars,
		MaxGapSeconds: DefaultMaxGapSeconds,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("component", "resolver").Logger()
	return r
}

// Resolve concatenates fragments, dropping the head of each fragment that
// repeats the tail of the one before. A single fragment is returned
// verbatim.
//
// For each boundary the last Window segments of the previous fragment are
// compared with the first Window segments of the current one. The latest
// matching current segment wins, and it and everything before it are
// dropped. Short, distant or dissimilar candidates never match, so
// ambiguous boundaries stay untrimmed.
func (r *Resolver) Resolve(fragments []string) (string, []Trim) {
	switch len(fragments) {
	case 0:
		return "", nil
	case 1:
		return fragments[0], nil
	}

	var trims []Trim
	var out []string
	prev := ExtractSegments(fragments[0])
	out = append(out, render(prev))

	for i := 1; i < len(fragments); i++ {
		cur := ExtractSegments(fragments[i])
		if trim, ok := r.findOverlap(prev, cur); ok {
			trim.Boundary = i
			trims = append(trims, trim)
			r.log.Info().
				Int("boundary", i).
				Float64("score", trim.Score).
				Int("dropped", trim.Dropped).
				Str("previous", trim.Previous.String()).
				Str("current", trim.Current.String()).
				Msg("overlap trimmed")
			cur = cur[trim.Dropped:]
		}
		if len(cur) > 0 {
			out = append(out, render(cur))
			prev = cur
		}
	}
	return strings.Join(out, "\n"), trims
}

// findOverlap returns the trim for cur against prev, if any.
func (r *Resolver) findOverlap(prev, cur []Segment) (Trim, bool) {
	window := max(1, r.Window)
	tail := prev[max(0, len(prev)-window):]
	head := cur[:min(window, len(cur))]

	for j := len(head) - 1; j >= 0; j-- {
		for k := len(tail) - 1; k >= 0; k-- {
			score, ok := r.match(tail[k], head[j])
			if ok {
				return Trim{Previous: tail[k], Current: head[j], Score: score, Dropped: j + 1}, true
			}
		}
	}
	return Trim{}, false
}

// match scores two segments and reports whether they are duplicates.
func (r *Resolver) match(prev, cur Segment) (float64, bool) {
	if r.MaxGapSeconds > 0 {
		p, okP := prev.Seconds()
		c, okC := cur.Seconds()
		if okP && okC && abs(c-p) > r.MaxGapSeconds {
			return 0, false
		}
	}

	a, b := normalizeText(prev.Content), normalizeText(cur.Content)
	if a == "" || b == "" {
		return 0, false
	}
	// Byte-identical segments are duplicates whatever their length.
	if prev == cur {
		return 1, true
	}
	if len([]rune(a)) <= r.MinChars || len([]rune(b)) <= r.MinChars {
		return 0, false
	}
	score := similarity(a, b)
	return score, score > r.Threshold
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
