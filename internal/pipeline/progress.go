package pipeline

import (
	"math"
	"sync"
)

// ProgressFunc receives the completed fraction of a stage.
type ProgressFunc func(stage string, fraction float64)

// tracker clamps fractions to [0,1] and drops values lower than the last
// one reported for the same stage. It is safe for concurrent use, since
// the dispatcher reports from several goroutines.
type tracker struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last map[string]float64
}

func newTracker(fn ProgressFunc) *tracker {
	return &tracker{fn: fn, last: make(map[string]float64)}
}

func (t *tracker) report(stage string, fraction float64) {
	if t == nil || t.fn == nil || math.IsNaN(fraction) {
		return
	}
	fraction = min(max(fraction, 0), 1)

	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[stage]; ok && fraction < last {
		return
	}
	t.last[stage] = fraction
	t.fn(stage, fraction)
}

// stage returns a reporter bound to one stage.
func (t *tracker) stage(name string) func(float64) {
	return func(f float64) { t.report(name, f) }
}

// counter returns a done/total reporter bound to one stage.
func (t *tracker) counter(name string) func(done, total int) {
	return func(done, total int) {
		if total <= 0 {
			return
		}
		t.report(name, float64(done)/float64(total))
	}
}
