package chunk_test

import (
	"math"
	"testing"

	"github.com/alnah/go-chunkscribe/internal/chunk"
)

func TestWindows_NinetyMinuteScenario(t *testing.T) {
	t.Parallel()

	got := chunk.Windows(90*60, 20*60, 30)
	want := []chunk.Window{
		{0, 20.5 * 60},
		{19.5 * 60, 40.5 * 60},
		{39.5 * 60, 60.5 * 60},
		{59.5 * 60, 80.5 * 60},
		{79.5 * 60, 90 * 60},
	}
	if len(got) != len(want) {
		t.Fatalf("Windows() = %v, want %d windows", got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWindows_Properties(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		duration, c, o    float64
		wantCount         int
		wantSharedSeconds float64
	}{
		{name: "exact multiple", duration: 3600, c: 600, o: 30, wantCount: 6, wantSharedSeconds: 60},
		{name: "remainder", duration: 3601, c: 600, o: 30, wantCount: 7, wantSharedSeconds: 60},
		{name: "no overlap", duration: 1800, c: 600, o: 0, wantCount: 3, wantSharedSeconds: 0},
		{name: "short tail", duration: 1210, c: 600, o: 30, wantCount: 3, wantSharedSeconds: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ws := chunk.Windows(tt.duration, tt.c, tt.o)
			if len(ws) != tt.wantCount {
				t.Fatalf("count = %d, want %d (ceil(D/C))", len(ws), tt.wantCount)
			}
			if ws[0].Start != 0 || ws[len(ws)-1].End != tt.duration {
				t.Errorf("union = [%v, %v], want [0, %v]", ws[0].Start, ws[len(ws)-1].End, tt.duration)
			}
			for i := 1; i < len(ws); i++ {
				shared := ws[i-1].End - ws[i].Start
				if shared < 0 {
					t.Errorf("gap between windows %d and %d", i-1, i)
				}
				if ws[i-1].End == tt.duration {
					continue // clipped by the end of the recording
				}
				if math.Abs(shared-tt.wantSharedSeconds) > 1e-9 {
					t.Errorf("boundary %d shares %v s, want %v", i, shared, tt.wantSharedSeconds)
				}
			}
		})
	}
}

func TestWindows_CapGrowsChunkLength(t *testing.T) {
	t.Parallel()

	// 20 hours at 10 min would need 120 windows.
	ws := chunk.Windows(20*3600, 600, 30)
	if len(ws) != chunk.MaxChunks {
		t.Fatalf("count = %d, want %d", len(ws), chunk.MaxChunks)
	}
	if ws[len(ws)-1].End != 20*3600 {
		t.Errorf("coverage lost: last end = %v", ws[len(ws)-1].End)
	}
	for i := 1; i < len(ws); i++ {
		if ws[i].Start > ws[i-1].End {
			t.Errorf("gap at %d", i)
		}
	}
}

func TestWindows_Degenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		duration, c, o float64
		want           chunk.Window
	}{
		{name: "NaN duration", duration: math.NaN(), c: 600, o: 30, want: chunk.Window{}},
		{name: "infinite duration", duration: math.Inf(1), c: 600, o: 30, want: chunk.Window{}},
		{name: "zero duration", duration: 0, c: 600, o: 30, want: chunk.Window{}},
		{name: "chunk longer than file", duration: 300, c: 600, o: 30, want: chunk.Window{End: 300}},
		{name: "zero chunk length", duration: 300, c: 0, o: 30, want: chunk.Window{End: 300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ws := chunk.Windows(tt.duration, tt.c, tt.o)
			if len(ws) != 1 || ws[0] != tt.want {
				t.Errorf("Windows() = %v, want [%+v]", ws, tt.want)
			}
		})
	}
}

func TestCopyExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		codec  string
		want   string
		wantOK bool
	}{
		{"aac", "m4a", true},
		{"alac", "m4a", true},
		{"mp3", "mp3", true},
		{"flac", "flac", true},
		{"pcm_s16le", "wav", true},
		{"pcm_f32le", "wav", true},
		{"opus", "", false},
		{"vorbis", "", false},
		{"", "", false},
		{"wmav2", "", false},
	}
	for _, tt := range tests {
		got, ok := chunk.CopyExt(tt.codec)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("copyExt(%q) = %q, %v; want %q, %v", tt.codec, got, ok, tt.want, tt.wantOK)
		}
	}
}
