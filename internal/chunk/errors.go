package chunk

import "errors"

// ErrChunkingFailed indicates ffmpeg could not cut a window. The whole
// operation is aborted and partial output removed.
var ErrChunkingFailed = errors.New("chunking failed")

// ErrChunkTooLarge indicates a produced chunk exceeds the provider limit.
var ErrChunkTooLarge = errors.New("chunk exceeds size limit")

// ErrContainerNotSplittable indicates byte-range splitting was requested
// for a container format, which would produce undecodable pieces.
var ErrContainerNotSplittable = errors.New("container format cannot be split by bytes")

// ErrInvalidWAV indicates the RIFF structure could not be parsed.
var ErrInvalidWAV = errors.New("invalid WAV file")

// ErrInvalidChunkSize indicates a non-positive or too small byte limit.
var ErrInvalidChunkSize = errors.New("invalid chunk size")
