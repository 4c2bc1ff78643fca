package eventloop

import (
	"sync/atomic"
	"time"
)

// Step is the tagged result a [Handle] callback returns to tell the loop
// whether the underlying task is finished or needs another turn.
type Step uint8

const (
	// StepDone indicates the callback's work is finished; the handle is
	// not rescheduled.
	StepDone Step = iota
	// StepYield indicates the callback adopted a generator-shaped task
	// that has more work to do; the loop requeues it via CallSoon.
	StepYield
)

// Callback is the function signature the loop invokes for a ready [Handle].
// Returning StepYield re-enqueues the same callback onto the ready queue for
// a future iteration, modelling a generator-based coroutine's next step as
// an explicit tagged result instead of reflection over generator values.
type Callback func() Step

// Handle is a cancellable reference to a scheduled callback. It is a
// non-owning bundle: cancelling it never removes it from whatever queue or
// heap holds it, it only causes the loop to skip invocation.
type Handle struct {
	callback  Callback
	cancelled atomic.Bool
}

func newHandle(cb Callback) *Handle {
	return &Handle{callback: cb}
}

// Cancel marks the handle cancelled. Idempotent and safe from any goroutine.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// run invokes the callback unless cancelled, returning the reported step.
// A cancelled handle is a no-op and reports StepDone.
func (h *Handle) run() Step {
	if h.cancelled.Load() || h.callback == nil {
		return StepDone
	}
	return h.callback()
}

// TimerHandle is a Handle with an absolute monotonic deadline. Comparison
// for heap ordering is by When alone; equal deadlines produce an unspecified
// relative order.
type TimerHandle struct {
	Handle
	when  time.Time
	index int // maintained by container/heap via timerHeap
}

func newTimerHandle(when time.Time, cb Callback) *TimerHandle {
	return &TimerHandle{Handle: Handle{callback: cb}, when: when, index: -1}
}

// When returns the timer's absolute deadline.
func (t *TimerHandle) When() time.Time {
	return t.when
}
