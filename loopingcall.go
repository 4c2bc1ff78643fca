package eventloop

import (
	"sync/atomic"
	"time"
)

// LoopingCall is a periodic callback that self-reschedules after each
// successful invocation.
//
// Constructed with interval ≥ 0. If interval > 0, each successful invocation
// reschedules itself via CallLater(interval, ...). If interval == 0, it
// reschedules via CallSoon instead. Because the loop computes a poll
// timeout of 0 whenever the ready queue is non-empty, that causes the loop
// to busy-poll every iteration. This is intentional, not a bug: it models
// "run on every iteration" semantics.
type LoopingCall struct {
	loop      *Loop
	fn        func() error
	interval  time.Duration
	cancelled atomic.Bool
	started   atomic.Bool
	nextDue   time.Time // zero until the first interval>0 schedule
}

// NewLoopingCall constructs a LoopingCall bound to loop. It does not start
// until Start is called.
func NewLoopingCall(loop *Loop, fn func() error, interval time.Duration) *LoopingCall {
	return &LoopingCall{loop: loop, fn: fn, interval: interval}
}

// Start schedules the first invocation. Calling Start twice is a no-op.
func (lc *LoopingCall) Start() {
	if !lc.started.CompareAndSwap(false, true) {
		return
	}
	lc.scheduleNext(true)
}

// Cancel sets the cancelled flag; the next invocation in flight observes it
// and does not reschedule. Safe from any goroutine.
func (lc *LoopingCall) Cancel() {
	lc.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (lc *LoopingCall) Cancelled() bool {
	return lc.cancelled.Load()
}

func (lc *LoopingCall) scheduleNext(first bool) {
	if lc.cancelled.Load() {
		return
	}
	step := func() Step {
		lc.invoke()
		return StepDone
	}
	if lc.interval > 0 {
		lc.nextDue = lc.loop.Time().Add(lc.interval)
		_, _ = lc.loop.CallLater(lc.interval, step)
		return
	}
	// interval == 0: the first invocation still goes through CallSoon so
	// Start() behaves uniformly regardless of first.
	_ = first
	_, _ = lc.loop.CallSoon(step)
}

func (lc *LoopingCall) invoke() {
	if lc.cancelled.Load() {
		return
	}
	now := lc.loop.Time()
	if lc.interval > 0 && !lc.nextDue.IsZero() {
		if delay := now.Sub(lc.nextDue); delay > lc.interval {
			lc.loop.metrics.incOverloads()
			lc.loop.logOverload("LoopingCall fell behind its interval", delay.Seconds())
		}
	}
	if err := lc.fn(); err != nil {
		// On exception, cancel and never reschedule; the failure is
		// logged, not propagated.
		lc.cancelled.Store(true)
		lc.loop.logFailure("LoopingCall", err)
		return
	}
	lc.scheduleNext(false)
	if lc.interval > 0 {
		// Measure the next invocation's lateness from this invocation's
		// start, so time spent inside fn counts towards falling behind.
		lc.nextDue = now.Add(lc.interval)
	}
}
