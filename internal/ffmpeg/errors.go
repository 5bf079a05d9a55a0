package ffmpeg

import "errors"

// ErrNotFound indicates the ffmpeg binary could not be located.
var ErrNotFound = errors.New("ffmpeg not found")

// ErrProbeUnavailable indicates ffprobe is not installed. Callers fall back
// to parsing ffmpeg output.
var ErrProbeUnavailable = errors.New("ffprobe not available")

// ErrTranscode indicates ffmpeg exited non-zero while transcoding or cutting.
var ErrTranscode = errors.New("transcode failed")
