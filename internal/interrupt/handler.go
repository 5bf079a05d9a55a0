package interrupt

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Behavior is the state the user asked for through interrupts.
type Behavior int

const (
	// None means no interrupt was received.
	None Behavior = iota
	// Drain means finish in-flight chunks, keep the checkpoint and stop.
	Drain
	// Abort means cancel in-flight requests immediately.
	Abort
)

// String returns the string representation of the Behavior.
func (b Behavior) String() string {
	switch b {
	case None:
		return "None"
	case Drain:
		return "Drain"
	case Abort:
		return "Abort"
	default:
		return fmt.Sprintf("Behavior(%d)", b)
	}
}

// ExitInterrupt is the exit code for interrupt (130 = 128 + SIGINT).
const ExitInterrupt = 130

const (
	drainMessage = "\nStopping after in-flight chunks. Press Ctrl+C again to abort."
	abortMessage = "\nAborted."
)

// Stopper receives the decisions of a Handler. pipeline.Token satisfies it.
type Stopper interface {
	Stop()
	Abort()
}

// Handler turns SIGINT/SIGTERM into a two-step shutdown.
// The first signal asks the stopper to drain, the second to abort.
type Handler struct {
	mu       sync.Mutex
	state    Behavior
	stopped  bool
	stopper  Stopper
	done     chan struct{} // Signals listen goroutine to exit
	stderr   io.Writer
	onSignal func(Behavior)
}

// Options holds injectable dependencies for testing.
type Options struct {
	SigCh   <-chan os.Signal
	Stopper Stopper
	// Stderr is the writer for user-facing messages.
	// Must be safe for concurrent writes from multiple goroutines.
	Stderr io.Writer
	// OnSignal is called after each handled signal with the new state.
	OnSignal func(Behavior)
}

// NewHandler creates a handler that listens for SIGINT/SIGTERM and drives s.
func NewHandler(s Stopper, stderr io.Writer) *Handler {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return NewHandlerWithOptions(Options{SigCh: sigCh, Stopper: s, Stderr: stderr})
}

// NewHandlerWithOptions creates a handler with injectable dependencies.
func NewHandlerWithOptions(opts Options) *Handler {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	h := &Handler{
		stopper:  opts.Stopper,
		done:     make(chan struct{}),
		stderr:   stderr,
		onSignal: opts.OnSignal,
	}
	if opts.SigCh != nil {
		go h.listen(opts.SigCh)
	}
	return h
}

func (h *Handler) listen(sigCh <-chan os.Signal) {
	for {
		select {
		case <-h.done:
			return
		case _, ok := <-sigCh:
			if !ok {
				return
			}
			if !h.handle() {
				return
			}
		}
	}
}

// handle applies one signal. It reports false once no further signal matters.
func (h *Handler) handle() bool {
	h.mu.Lock()
	if h.stopped || h.state == Abort {
		h.mu.Unlock()
		return false
	}
	var msg string
	if h.state == None {
		h.state = Drain
		msg = drainMessage
	} else {
		h.state = Abort
		msg = abortMessage
	}
	state := h.state
	h.mu.Unlock()

	fmt.Fprintln(h.stderr, msg)
	if h.stopper != nil {
		if state == Drain {
			h.stopper.Stop()
		} else {
			h.stopper.Abort()
		}
	}
	if h.onSignal != nil {
		h.onSignal(state)
	}
	return state != Abort
}

// State returns what the user has asked for so far.
func (h *Handler) State() Behavior {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// WasInterrupted returns true if at least one interrupt was received.
func (h *Handler) WasInterrupted() bool {
	return h.State() != None
}

// Stop cleans up the handler. Should be called when done.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	signal.Reset(syscall.SIGINT, syscall.SIGTERM)
	close(h.done)
}
