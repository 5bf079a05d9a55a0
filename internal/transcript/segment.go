package transcript

import (
	"strings"
	"unicode"
)

// Segment is a marker and the text that follows it up to the next marker.
// Text before the first marker yields a segment with an empty Timestamp.
type Segment struct {
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// Seconds returns the marker position, or false when there is none.
func (s Segment) Seconds() (int, bool) {
	if s.Timestamp == "" {
		return 0, false
	}
	return markerSeconds(s.Timestamp)
}

// String renders the segment as one transcript line.
func (s Segment) String() string {
	if s.Timestamp == "" {
		return s.Content
	}
	if s.Content == "" {
		return s.Timestamp
	}
	return s.Timestamp + " " + s.Content
}

// ExtractSegments splits text at its timestamp markers. Blank segments
// without a marker are dropped.
func ExtractSegments(text string) []Segment {
	locs := markerRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		if c := strings.TrimSpace(text); c != "" {
			return []Segment{{Content: c}}
		}
		return nil
	}

	var segs []Segment
	if lead := strings.TrimSpace(text[:locs[0][0]]); lead != "" {
		segs = append(segs, Segment{Content: lead})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segs = append(segs, Segment{
			Timestamp: text[loc[0]:loc[1]],
			Content:   strings.TrimSpace(text[loc[1]:end]),
		})
	}
	return segs
}

func render(segs []Segment) string {
	lines := make([]string, 0, len(segs))
	for _, s := range segs {
		lines = append(lines, s.String())
	}
	return strings.Join(lines, "\n")
}

// normalizeText lowercases, strips punctuation and collapses whitespace.
func normalizeText(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// Similarity scores two texts in [0,1] after normalization: the length
// ratio when one contains the other, otherwise the share of words that
// match at the same position.
func Similarity(a, b string) float64 {
	return similarity(normalizeText(a), normalizeText(b))
}

func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	short, long := a, b
	if len([]rune(short)) > len([]rune(long)) {
		short, long = long, short
	}
	if strings.Contains(long, short) {
		return float64(len([]rune(short))) / float64(len([]rune(long)))
	}

	aw, bw := strings.Fields(a), strings.Fields(b)
	matches := 0
	for i := range min(len(aw), len(bw)) {
		if aw[i] == bw[i] {
			matches++
		}
	}
	return float64(matches) / float64(max(len(aw), len(bw)))
}
