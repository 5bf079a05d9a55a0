package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-chunkscribe/internal/media"
	"github.com/alnah/go-chunkscribe/internal/pipeline"
	"github.com/alnah/go-chunkscribe/internal/provider"
	"github.com/alnah/go-chunkscribe/internal/strategy"
)

// ---------------------------------------------------------------------------
// runPlan - dry run through the real strategy
// ---------------------------------------------------------------------------

func TestRunPlan(t *testing.T) {
	t.Parallel()

	longMeeting := media.Info{DurationSeconds: 40 * 60, IsContainer: true, AudioCodec: "aac", Channels: 2, SampleRate: 48000}
	lecture := media.Info{DurationSeconds: 50 * 60, IsContainer: true, IsVideo: true, AudioCodec: "aac", Channels: 2, SampleRate: 48000}

	tests := []struct {
		name     string
		file     string
		provider string
		info     media.Info
		want     []string
	}{
		{
			name: "short mp3 goes direct",
			file: "standup.mp3",
			info: shortRecording,
			want: []string{"Plan:      direct", "Provider:  openai", "Duration:  01:00", "within provider limits"},
		},
		{
			name:     "long container is chunked for gemini",
			file:     "meeting.m4a",
			provider: "gemini",
			info:     longMeeting,
			want:     []string{"Plan:      temporal-chunk", "Chunks:    20:00 each, 00:30 overlap", "Fallback:  temporal-chunk-fallback", "Dispatch:  parallel, up to 4 requests"},
		},
		{
			name:     "video extracts audio",
			file:     "lecture.mp4",
			provider: "groq",
			info:     lecture,
			want:     []string{"Plan:      extract-audio", "Media:     video, aac, 2 ch, 48000 Hz", "Encode:", "Dispatch:  sequential, up to 1 requests"},
		},
		{
			name: "unknown duration",
			file: "stream.mp3",
			info: media.Info{AudioCodec: "mp3"},
			want: []string{"Duration:  unknown", "Plan:      direct"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, mocks := testEnv(t)
			mocks.components.Prober.Info = tt.info

			if err := runPlan(context.Background(), env, createTestMediaFile(t, tt.file), tt.provider); err != nil {
				t.Fatalf("runPlan() unexpected error: %v", err)
			}
			got := mocks.stdout.String()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output missing %q:\n%s", w, got)
				}
			}
			if len(mocks.providers.Provider.Calls()) != 0 {
				t.Error("plan called the provider")
			}
		})
	}
}

func TestRunPlan_NeedsNoAPIKey(t *testing.T) {
	t.Parallel()

	env, mocks := testEnv(t)
	env.Getenv = staticEnv(nil)

	if err := runPlan(context.Background(), env, createTestMediaFile(t, "a.mp3"), "gemini"); err != nil {
		t.Fatalf("runPlan() unexpected error: %v", err)
	}
	if id, _ := mocks.providers.Last(); !id.IsZero() {
		t.Errorf("plan created a %v provider", id)
	}
}

func TestRunPlan_Errors(t *testing.T) {
	t.Parallel()

	errProbe := errors.New("moov atom not found")

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		env, _ := testEnv(t)
		err := runPlan(context.Background(), env, filepath.Join(t.TempDir(), "nope.mp3"), "")
		if !errors.Is(err, media.ErrFileNotFound) {
			t.Errorf("error = %v, want media.ErrFileNotFound", err)
		}
	})

	t.Run("bad provider", func(t *testing.T) {
		t.Parallel()
		env, _ := testEnv(t)
		err := runPlan(context.Background(), env, createTestMediaFile(t, "a.mp3"), "whisperx")
		if !errors.Is(err, provider.ErrInvalidProvider) {
			t.Errorf("error = %v, want provider.ErrInvalidProvider", err)
		}
	})

	t.Run("probe failure", func(t *testing.T) {
		t.Parallel()
		env, mocks := testEnv(t)
		mocks.components.Prober.Err = errProbe
		err := runPlan(context.Background(), env, createTestMediaFile(t, "a.m4a"), "")
		var se *pipeline.StageError
		if !errors.As(err, &se) || se.Stage != pipeline.StageProbe || !errors.Is(err, errProbe) {
			t.Errorf("error = %v, want probe StageError wrapping %v", err, errProbe)
		}
	})
}

func TestPrintPlan_TemporalChunkWithByteCap(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	plan := strategy.Plan{
		Kind:           strategy.TemporalChunk,
		Provider:       provider.OpenAI,
		ChunkMinutes:   10,
		OverlapSeconds: 30,
		MaxChunkBytes:  24 * 1024 * 1024,
		Reason:         "long container",
	}
	printPlan(&buf, media.Source{Name: "x.m4a", Size: 100 * 1024 * 1024}, media.Info{DurationSeconds: 3600}, plan)

	got := buf.String()
	for _, want := range []string{"Size:      100 MB", "Duration:  01:00:00", "Chunks:    10:00 each, 00:30 overlap", "Max chunk: 24 MB"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
