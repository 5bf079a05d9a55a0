package pipeline

import (
	"context"
	"sync"
)

// Token lets the caller end a job early.
//
// Stop is soft: no new stage or request starts, in-flight requests finish
// and their fragments are checkpointed. Abort is hard: the job context is
// canceled and in-flight work is dropped.
type Token struct {
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewToken returns a Token and the context that Abort cancels.
func NewToken(parent context.Context) (*Token, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Token{stop: make(chan struct{}), cancel: cancel}, ctx
}

// Stop requests a soft stop. It is safe to call more than once.
func (t *Token) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Abort stops the job and cancels its context.
func (t *Token) Abort() {
	t.Stop()
	t.cancel()
}

// Release frees the token's context. Call it when the job is over.
func (t *Token) Release() {
	t.cancel()
}

// Done is closed once Stop or Abort was called.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.stop
}

// Stopped reports whether Stop or Abort was called.
func (t *Token) Stopped() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}
