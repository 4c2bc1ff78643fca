package eventloop

import "sync/atomic"

// Metrics holds lightweight, lock-free counters describing the loop's
// runtime behaviour. All fields are safe to read from any goroutine. Most
// counters are only added to from the loop goroutine; the wakeup counter is
// also added to by the thread-safe entry points (CallSoonThreadsafe, CallAt,
// Stop) from whichever goroutine calls them. Collection is gated
// behind WithMetrics(true) to keep the hot path allocation-free when
// metrics are not being collected.
type Metrics struct {
	enabled bool

	// Iterations counts completed run-once iterations of the loop.
	iterations atomic.Uint64
	// ReadyExecuted counts handles executed from the ready queue.
	readyExecuted atomic.Uint64
	// TimersExecuted counts timer handles executed (cancelled timers that
	// were popped but skipped are not counted).
	timersExecuted atomic.Uint64
	// TimersCancelled counts timers whose callback was skipped because
	// Cancel had been called before dispatch.
	timersCancelled atomic.Uint64
	// PollErrors counts non-transient poll() errors.
	pollErrors atomic.Uint64
	// Wakeups counts Waker.Wake calls that actually performed a write.
	wakeups atomic.Uint64
	// Overloads counts conditions the loop considered noteworthy but not
	// fatal, e.g. a LoopingCall falling behind its interval.
	overloads atomic.Uint64
}

func newMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

func (m *Metrics) incIterations() {
	if m.enabled {
		m.iterations.Add(1)
	}
}

func (m *Metrics) incReadyExecuted(n uint64) {
	if m.enabled && n > 0 {
		m.readyExecuted.Add(n)
	}
}

func (m *Metrics) incTimersExecuted() {
	if m.enabled {
		m.timersExecuted.Add(1)
	}
}

func (m *Metrics) incTimersCancelled() {
	if m.enabled {
		m.timersCancelled.Add(1)
	}
}

func (m *Metrics) incPollErrors() {
	if m.enabled {
		m.pollErrors.Add(1)
	}
}

func (m *Metrics) incWakeups() {
	if m.enabled {
		m.wakeups.Add(1)
	}
}

func (m *Metrics) incOverloads() {
	if m.enabled {
		m.overloads.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics' counters.
type MetricsSnapshot struct {
	Iterations      uint64
	ReadyExecuted   uint64
	TimersExecuted  uint64
	TimersCancelled uint64
	PollErrors      uint64
	Wakeups         uint64
	Overloads       uint64
}

// Snapshot returns the current values of all counters. Safe from any
// goroutine.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Iterations:      m.iterations.Load(),
		ReadyExecuted:   m.readyExecuted.Load(),
		TimersExecuted:  m.timersExecuted.Load(),
		TimersCancelled: m.timersCancelled.Load(),
		PollErrors:      m.pollErrors.Load(),
		Wakeups:         m.wakeups.Load(),
		Overloads:       m.overloads.Load(),
	}
}

// Metrics returns the loop's metrics collector. Returns a non-nil value
// even when metrics collection is disabled; its counters simply stay zero.
func (l *Loop) Metrics() *Metrics {
	return l.metrics
}
