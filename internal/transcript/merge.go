package transcript

import (
	"sort"
	"strings"

	"github.com/alnah/go-chunkscribe/internal/transcribe"
)

// Final is the assembled transcript.
type Final struct {
	Text  string
	Trims []Trim
	// Approximate is set when some fragments could not be placed on the
	// timeline; their markers are relative to their own chunk.
	Approximate bool
}

// Merge orders fragments by Index, shifts their markers to the recording's
// timeline and joins them. Overlap trimming runs only when overlaps is true
// (temporal chunks); other plans have no shared audio between fragments.
func Merge(fragments []transcribe.Fragment, overlaps bool, r *Resolver) Final {
	ordered := make([]transcribe.Fragment, len(fragments))
	copy(ordered, fragments)
	sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].Index < ordered[b].Index })

	var final Final
	texts := make([]string, 0, len(ordered))
	for _, f := range ordered {
		text := f.Text
		if f.Approximate {
			final.Approximate = true
		} else {
			text = Normalize(text, f.Offset/60)
		}
		texts = append(texts, text)
	}

	if !overlaps || len(texts) < 2 {
		final.Text = Concat(texts)
		return final
	}
	if r == nil {
		r = NewResolver()
	}
	final.Text, final.Trims = r.Resolve(texts)
	return final
}

// Concat joins fragments without trimming. A single fragment is returned
// verbatim.
func Concat(texts []string) string {
	if len(texts) == 1 {
		return texts[0]
	}
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
