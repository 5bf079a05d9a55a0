package pipeline

import (
	"errors"
	"fmt"
)

// Stage names, shared by progress reports and StageError.
const (
	StageProbe      = "probe"
	StageCheckpoint = "checkpoint"
	StageCompress   = "compress"
	StageChunk      = "chunk"
	StageTranscribe = "transcribe"
	StageMerge      = "merge"
	StageWrite      = "write"
)

// ErrNoProvider indicates a Pipeline was built without a transcription provider.
var ErrNoProvider = errors.New("no transcription provider")

// StageError is a pipeline failure annotated with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

// Error renders "<stage>: <cause>".
func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Stage + " failed"
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
