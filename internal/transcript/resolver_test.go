package transcript_test

// Notes:
// - Fragments are written with global-timeline markers, as the resolver
//   receives them after normalization.
// - Trim logging is checked through a zerolog JSON buffer.

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/alnah/go-chunkscribe/internal/transcript"
)

func TestResolve_SingleFragmentIsVerbatim(t *testing.T) {
	t.Parallel()

	in := "  [00:00] kept   exactly\n\n as is "
	got, trims := transcript.NewResolver().Resolve([]string{in})
	if got != in {
		t.Errorf("Resolve([f]) = %q, want %q", got, in)
	}
	if len(trims) != 0 {
		t.Errorf("trims = %v, want none", trims)
	}
}

func TestResolve_Empty(t *testing.T) {
	t.Parallel()

	if got, _ := transcript.NewResolver().Resolve(nil); got != "" {
		t.Errorf("Resolve(nil) = %q, want empty", got)
	}
}

func TestResolve_ExactDuplicateKeptOnce(t *testing.T) {
	t.Parallel()

	prev := "[19:40] We start with the basics.\n[20:10] Ok."
	cur := "[20:10] Ok.\n[20:40] Now the second part."
	got, trims := transcript.NewResolver().Resolve([]string{prev, cur})

	if n := strings.Count(got, "[20:10] Ok."); n != 1 {
		t.Errorf("duplicate segment appears %d times in %q, want 1", n, got)
	}
	want := "[19:40] We start with the basics.\n[20:10] Ok.\n[20:40] Now the second part."
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
	if len(trims) != 1 || trims[0].Boundary != 1 || trims[0].Dropped != 1 || trims[0].Score != 1 {
		t.Errorf("trims = %+v, want one exact trim at boundary 1", trims)
	}
}

func TestResolve_OverlapRegionDropped(t *testing.T) {
	t.Parallel()

	prev := strings.Join([]string{
		"[19:00] Earlier material that only the first chunk has.",
		"[19:45] The mitochondria is the powerhouse of the cell.",
		"[20:15] Energy is produced through cellular respiration here.",
	}, "\n")
	// Same speech heard again at the start of the next chunk, with small
	// recognition differences and slightly different markers.
	cur := strings.Join([]string{
		"[19:46] the mitochondria is the powerhouse of the cell",
		"[20:14] Energy is produced through cellular respiration, here.",
		"[20:50] Next we look at photosynthesis in plants.",
	}, "\n")

	got, trims := transcript.NewResolver().Resolve([]string{prev, cur})

	if strings.Count(strings.ToLower(got), "powerhouse") != 1 {
		t.Errorf("powerhouse sentence duplicated:\n%s", got)
	}
	if strings.Count(got, "cellular respiration") != 1 {
		t.Errorf("respiration sentence duplicated:\n%s", got)
	}
	if !strings.HasSuffix(got, "[20:50] Next we look at photosynthesis in plants.") {
		t.Errorf("new speech lost:\n%s", got)
	}
	if len(trims) != 1 || trims[0].Dropped != 2 {
		t.Fatalf("trims = %+v, want one trim dropping 2 segments", trims)
	}
	if trims[0].Score <= transcript.DefaultThreshold {
		t.Errorf("trim score %v below threshold", trims[0].Score)
	}
}

func TestResolve_UnderTrims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		prev string
		cur  string
	}{
		{
			name: "short near-duplicate below min chars",
			prev: "[19:50] Thank you all.",
			cur:  "[20:05] thank you all",
		},
		{
			name: "repeated sentence far from boundary",
			prev: "[15:00] Remember to submit the assignment by Friday.",
			cur:  "[20:30] Remember to submit the assignment by Friday.",
		},
		{
			name: "different speech",
			prev: "[19:50] The results were inconclusive overall.",
			cur:  "[20:05] We then repeated the experiment twice.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, trims := transcript.NewResolver().Resolve([]string{tt.prev, tt.cur})
			if len(trims) != 0 {
				t.Errorf("trims = %+v, want none", trims)
			}
			if got != tt.prev+"\n"+tt.cur {
				t.Errorf("Resolve() = %q, want both fragments intact", got)
			}
		})
	}
}

func TestResolve_BoundsAreExclusive(t *testing.T) {
	t.Parallel()

	words := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen"
	tests := []struct {
		name     string
		prev     string
		cur      string
		wantTrim bool
	}{
		{
			name: "similarity exactly at threshold",
			prev: "[19:50] " + words + " alpha beta gamma",
			cur:  "[20:05] " + words + " delta epsilon zeta", // 17 of 20 words
		},
		{
			name:     "similarity above threshold",
			prev:     "[19:50] " + words + " alpha beta gamma",
			cur:      "[20:05] " + words + " alpha epsilon zeta", // 18 of 20 words
			wantTrim: true,
		},
		{
			name: "normalized length exactly min chars",
			prev: "[19:50] Abcd efgh ijkl mnopq.",
			cur:  "[20:05] abcd efgh ijkl mnopq",
		},
		{
			name:     "normalized length one over min chars",
			prev:     "[19:50] Abcd efgh ijkl mnopqr.",
			cur:      "[20:05] abcd efgh ijkl mnopqr",
			wantTrim: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, trims := transcript.NewResolver().Resolve([]string{tt.prev, tt.cur})
			if got := len(trims) == 1; got != tt.wantTrim {
				t.Errorf("trimmed = %v (%+v), want %v", got, trims, tt.wantTrim)
			}
		})
	}
}

func TestResolve_WindowLimitsSearch(t *testing.T) {
	t.Parallel()

	dup := "[20:00] This sentence is long enough to be compared safely."
	prev := dup
	cur := strings.Join([]string{
		"[20:01] first new line of speech here",
		"[20:02] second new line of speech here",
		dup,
	}, "\n")

	r := transcript.NewResolver()
	r.Window = 2
	if _, trims := r.Resolve([]string{prev, cur}); len(trims) != 0 {
		t.Errorf("match outside the window was trimmed: %+v", trims)
	}
	r.Window = 3
	if _, trims := r.Resolve([]string{prev, cur}); len(trims) != 1 || trims[0].Dropped != 3 {
		t.Errorf("trims = %+v, want one trim dropping 3 with a wider window", trims)
	}
}

func TestResolve_LogsTrims(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := transcript.NewResolver(transcript.WithLogger(logger))
	r.Resolve([]string{"[00:10] Duplicate line.", "[00:10] Duplicate line.\n[00:20] New."})

	out := buf.String()
	for _, want := range []string{`"message":"overlap trimmed"`, `"component":"resolver"`, `"boundary":1`, `"dropped":1`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}
}
