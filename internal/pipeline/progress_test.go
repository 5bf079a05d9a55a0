package pipeline_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/alnah/go-chunkscribe/internal/pipeline"
)

func TestTracker_ClampsAndNeverDecreases(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	report := pipeline.NewTestReporter(rec.fn)

	report("compress", -0.5)
	report("compress", 0.4)
	report("compress", 0.2)
	report("compress", math.NaN())
	report("compress", 3)
	report("transcribe", 0.1)

	if want := []float64{0, 0.4, 1}; !reflect.DeepEqual(rec.seq["compress"], want) {
		t.Errorf("compress reports = %v, want %v", rec.seq["compress"], want)
	}
	if want := []float64{0.1}; !reflect.DeepEqual(rec.seq["transcribe"], want) {
		t.Errorf("transcribe reports = %v, want %v", rec.seq["transcribe"], want)
	}
}

func TestTracker_NilCallback(t *testing.T) {
	t.Parallel()

	report := pipeline.NewTestReporter(nil)
	report("probe", 1)
}

func TestToken(t *testing.T) {
	t.Parallel()

	t.Run("stop is soft and idempotent", func(t *testing.T) {
		t.Parallel()
		tok, ctx := pipeline.NewToken(context.Background())
		defer tok.Release()

		if tok.Stopped() {
			t.Fatal("Stopped() = true before Stop")
		}
		tok.Stop()
		tok.Stop()
		if !tok.Stopped() {
			t.Error("Stopped() = false after Stop")
		}
		if ctx.Err() != nil {
			t.Errorf("ctx.Err() = %v after Stop, want nil", ctx.Err())
		}
		select {
		case <-tok.Done():
		default:
			t.Error("Done() not closed after Stop")
		}
	})

	t.Run("abort cancels the context", func(t *testing.T) {
		t.Parallel()
		tok, ctx := pipeline.NewToken(context.Background())
		tok.Abort()
		if !tok.Stopped() {
			t.Error("Stopped() = false after Abort")
		}
		if !errors.Is(ctx.Err(), context.Canceled) {
			t.Errorf("ctx.Err() = %v, want context.Canceled", ctx.Err())
		}
	})

	t.Run("nil token never stops", func(t *testing.T) {
		t.Parallel()
		var tok *pipeline.Token
		if tok.Stopped() || tok.Done() != nil {
			t.Error("nil token reported a stop")
		}
	})
}

func TestStageError(t *testing.T) {
	t.Parallel()

	cause := errors.New("ffmpeg exited 1")
	err := error(&pipeline.StageError{Stage: pipeline.StageCompress, Err: cause})

	if got, want := err.Error(), "compress: ffmpeg exited 1"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if got := (&pipeline.StageError{Stage: "merge"}).Error(); got != "merge failed" {
		t.Errorf("Error() without cause = %q", got)
	}
}
