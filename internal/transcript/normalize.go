// Package transcript turns per-chunk fragments into one transcript on the
// recording's timeline: markers are shifted by each chunk's offset and the
// speech duplicated by chunk overlaps is trimmed.
package transcript

import (
	"math"
	"regexp"
	"strconv"

	"github.com/alnah/go-chunkscribe/internal/format"
)

// markerRe matches [MM:SS] and [HH:MM:SS] (also [M:SS], [H:MM:SS]).
var markerRe = regexp.MustCompile(`\[(\d{1,2}):(\d{2})(?::(\d{2}))?\]`)

// Normalize shifts every timestamp marker in text by offsetMinutes and
// re-emits it in canonical form. Text without markers is unchanged, and a
// zero offset returns text as is.
func Normalize(text string, offsetMinutes float64) string {
	if offsetMinutes == 0 || math.IsNaN(offsetMinutes) || math.IsInf(offsetMinutes, 0) {
		return text
	}
	shift := offsetMinutes * 60
	return markerRe.ReplaceAllStringFunc(text, func(m string) string {
		secs, ok := markerSeconds(m)
		if !ok {
			return m
		}
		return format.Marker(int(math.Round(float64(secs) + shift)))
	})
}

// markerSeconds parses a marker into seconds.
func markerSeconds(m string) (int, bool) {
	sub := markerRe.FindStringSubmatch(m)
	if sub == nil {
		return 0, false
	}
	a, _ := strconv.Atoi(sub[1])
	b, _ := strconv.Atoi(sub[2])
	if sub[3] == "" {
		return a*60 + b, true
	}
	c, _ := strconv.Atoi(sub[3])
	return a*3600 + b*60 + c, true
}
