package pipeline

// NewTestReporter exposes the progress tracker for testing.
func NewTestReporter(fn ProgressFunc) func(stage string, fraction float64) {
	return newTracker(fn).report
}
