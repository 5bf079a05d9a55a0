package chunk

import "math"

// MaxChunks caps how many windows a recording is split into. Longer
// recordings get longer windows instead of losing coverage.
const MaxChunks = 100

// Window is a [Start, End] span in seconds.
type Window struct {
	Start float64
	End   float64
}

// Windows tiles [0, duration] into ceil(duration/chunkLen) windows. Window
// i spans [i*C-O, (i+1)*C+O] clipped to the recording, so consecutive
// windows share 2*O seconds around each nominal boundary i*C.
//
// A non-finite or non-positive duration or chunk length yields a single
// window covering the whole file (End is 0 when the duration is unknown).
func Windows(duration, chunkLen, overlap float64) []Window {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return []Window{{Start: 0, End: 0}}
	}
	if math.IsNaN(chunkLen) || math.IsInf(chunkLen, 0) || chunkLen <= 0 || chunkLen >= duration {
		return []Window{{Start: 0, End: duration}}
	}

	count := int(math.Ceil(duration / chunkLen))
	if count > MaxChunks {
		chunkLen = duration / MaxChunks
		count = MaxChunks
	}
	if math.IsNaN(overlap) || overlap < 0 {
		overlap = 0
	}
	overlap = min(overlap, chunkLen/2)

	windows := make([]Window, 0, count)
	for i := range count {
		start := max(0, float64(i)*chunkLen-overlap)
		end := min(duration, float64(i+1)*chunkLen+overlap)
		if i == count-1 {
			end = duration
		}
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows
}
