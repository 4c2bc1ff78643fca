package eventloop

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Loop is a single-threaded cooperative event loop. Exactly one goroutine,
// whichever calls Run or RunForever, ever touches
// the ready queue or dispatches poller events; every other entry point is
// either explicitly thread-safe (documented on the method) or requires the
// caller to be on the loop goroutine.
type Loop struct {
	opts *loopOptions

	state          loopState
	stopRequested  atomic.Bool
	loopGoroutine  uint64 // set once Run begins, read by isLoopThread
	lockedOSThread bool

	poller Poller
	waker  *Waker

	readers map[int]*Handle
	writers map[int]*Handle

	ready  readyQueue
	timers timerHeap

	metrics *Metrics

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Loop, installing the poller, the waker, and the
// counters, but does not start running.
func New(opts ...Option) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = defaultLogger()
	}

	l := &Loop{
		opts:    cfg,
		readers: make(map[int]*Handle),
		writers: make(map[int]*Handle),
		metrics: newMetrics(cfg.metricsEnable),
	}

	if cfg.poller != nil {
		l.poller = cfg.poller
	} else if !cfg.cpuBound {
		p, err := newPlatformPoller()
		if err != nil {
			return nil, err
		}
		l.poller = p
	} else {
		l.poller = newNoopPoller()
	}

	waker, err := newWaker()
	if err != nil {
		_ = l.poller.Close()
		return nil, err
	}
	l.waker = waker

	drainHandle := newHandle(func() Step {
		l.waker.drain()
		return StepDone
	})
	l.readers[waker.Fileno()] = drainHandle
	if err := l.poller.AddReader(waker.Fileno()); err != nil {
		_ = l.waker.Close()
		_ = l.poller.Close()
		return nil, err
	}

	return l, nil
}

// Time returns the loop's clock (monotonic, same basis as Go's time.Now).
func (l *Loop) Time() time.Time {
	return time.Now()
}

// IsRunning reports whether a goroutine is currently inside Run/RunForever.
func (l *Loop) IsRunning() bool {
	return l.state.load() == StateRunning
}

// CallSoon schedules cb to run on a future iteration of the loop, in FIFO
// order relative to other CallSoon calls. Must be called from the loop
// goroutine, or before the loop has started running.
func (l *Loop) CallSoon(cb Callback) (*Handle, error) {
	h := newHandle(cb)
	l.ready.pushLocal(h)
	return h, nil
}

// CallSoonThreadsafe schedules cb to run on a future iteration, safe from
// any goroutine. If the loop is currently blocked in Poll, it is woken.
func (l *Loop) CallSoonThreadsafe(cb Callback) error {
	h := newHandle(cb)
	l.ready.pushRemote(h)
	if l.waker.Wake() {
		l.metrics.incWakeups()
	}
	return nil
}

// CallAt schedules cb to run at the absolute time when. Thread-safe.
func (l *Loop) CallAt(when time.Time, cb Callback) (*TimerHandle, error) {
	t := newTimerHandle(when, cb)
	l.timers.push(t)
	if l.state.load() == StateRunning {
		if l.waker.Wake() {
			l.metrics.incWakeups()
		}
	}
	return t, nil
}

// CallLater schedules cb to run after delay elapses. Thread-safe (delegates
// to CallAt).
func (l *Loop) CallLater(delay time.Duration, cb Callback) (*TimerHandle, error) {
	return l.CallAt(l.Time().Add(delay), cb)
}

// CallRepeatedly returns a started LoopingCall invoking fn every interval
// (interval must be > 0).
func (l *Loop) CallRepeatedly(interval time.Duration, fn func() error) *LoopingCall {
	lc := NewLoopingCall(l, fn, interval)
	lc.Start()
	return lc
}

// CallEvery returns a started LoopingCall invoking fn on every iteration of
// the loop (zero-interval LoopingCall, intentional busy-polling).
func (l *Loop) CallEvery(fn func() error) *LoopingCall {
	lc := NewLoopingCall(l, fn, 0)
	lc.Start()
	return lc
}

// RunInExecutor submits fn to executor (or the loop's default executor if
// executor is nil) and returns a Future for its result. Returns
// ErrImproperlyConfigured if no executor is available.
func (l *Loop) RunInExecutor(executor Executor, fn func() (any, error)) (Future, error) {
	if executor == nil {
		executor = l.opts.executor
	}
	if executor == nil {
		return nil, ErrImproperlyConfigured
	}
	return executor.Apply(fn), nil
}

// AddReader registers cb to run when fd becomes readable, replacing any
// existing reader registration. Must be called from the loop goroutine, or
// before the loop starts.
func (l *Loop) AddReader(fd int, cb Callback) (*Handle, error) {
	h := newHandle(cb)
	l.readers[fd] = h
	if err := l.poller.AddReader(fd); err != nil {
		delete(l.readers, fd)
		return nil, err
	}
	return h, nil
}

// AddWriter registers cb to run when fd becomes writable, replacing any
// existing writer registration.
func (l *Loop) AddWriter(fd int, cb Callback) (*Handle, error) {
	h := newHandle(cb)
	l.writers[fd] = h
	if err := l.poller.AddWriter(fd); err != nil {
		delete(l.writers, fd)
		return nil, err
	}
	return h, nil
}

// AddConnector registers cb as both the writer and error handle for fd: a
// non-blocking connect() reports readiness as writability, and failures
// surface as EventError on the same fd, so a single handle covers both.
func (l *Loop) AddConnector(fd int, cb Callback) (*Handle, error) {
	return l.AddWriter(fd, cb)
}

// RemoveReader removes fd's reader registration. Reports whether one existed.
func (l *Loop) RemoveReader(fd int) (bool, error) {
	if _, ok := l.readers[fd]; !ok {
		return false, nil
	}
	delete(l.readers, fd)
	return l.poller.RemoveReader(fd)
}

// RemoveWriter removes fd's writer registration. Reports whether one existed.
func (l *Loop) RemoveWriter(fd int) (bool, error) {
	if _, ok := l.writers[fd]; !ok {
		return false, nil
	}
	delete(l.writers, fd)
	return l.poller.RemoveWriter(fd)
}

// RemoveConnector removes fd's connector (writer) registration. Reports
// whether one existed.
func (l *Loop) RemoveConnector(fd int) (bool, error) {
	return l.RemoveWriter(fd)
}

// Stop schedules loop exit after the current iteration completes.
// Thread-safe.
func (l *Loop) Stop() {
	l.stopRequested.Store(true)
	if l.state.load() == StateRunning {
		if l.waker.Wake() {
			l.metrics.incWakeups()
		}
	}
}

// RunForever runs iterations until Stop is called.
func (l *Loop) RunForever() error {
	return l.runLoop(func() bool { return true })
}

// Run runs iterations until there is no more pending work (no ready
// callbacks, no scheduled timers) or Stop is called.
func (l *Loop) Run() error {
	return l.runLoop(func() bool {
		return l.ready.len() > 0 || l.ready.hasPending() || l.timers.len() > 0
	})
}

// RunUntilComplete runs the loop until f is done, returning its result.
// Attaches Stop as a done-callback (removed afterward); if the loop exits
// before f completes, returns ErrNotComplete.
func (l *Loop) RunUntilComplete(f Future) (any, error) {
	doneCb := func(Future) { l.Stop() }
	f.AddDoneCallback(doneCb)
	defer f.RemoveDoneCallback(doneCb)

	if err := l.RunForever(); err != nil {
		return nil, err
	}
	if !f.Done() {
		return nil, ErrNotComplete
	}
	return f.Result()
}

func (l *Loop) runLoop(active func() bool) error {
	if !l.state.compareAndSwap(StateAwake, StateRunning) {
		switch l.state.load() {
		case StateRunning:
			return ErrLoopAlreadyRunning
		case StateClosed:
			return ErrLoopClosed
		default:
			return ErrLoopAlreadyRunning
		}
	}

	l.loopGoroutine = getGoroutineID()
	if l.opts.ioThreadLoop {
		runtime.LockOSThread()
		l.lockedOSThread = true
	}

	defer func() {
		if l.lockedOSThread {
			runtime.UnlockOSThread()
			l.lockedOSThread = false
		}
		l.loopGoroutine = 0
		l.stopRequested.Store(false)
		l.state.store(StateAwake)
	}()

	for {
		if l.stopRequested.Load() {
			return nil
		}
		if err := l.runOnce(); err != nil {
			return err
		}
		if l.stopRequested.Load() {
			return nil
		}
		if !active() {
			return nil
		}
	}
}

// runOnce runs a single poll-dispatch-execute iteration.
func (l *Loop) runOnce() error {
	l.metrics.incIterations()

	timeout := l.computeTimeout()

	events, err := l.poller.Poll(timeout)
	if err != nil {
		if isTransientPollError != nil && isTransientPollError(err) {
			events = nil
		} else {
			l.metrics.incPollErrors()
			l.logPollError(err)
			return err
		}
	}

	for _, ev := range events {
		l.handleEvents(ev.FD, ev.Events)
	}

	now := l.Time()
	due := l.timers.drainDue(now)
	for _, t := range due {
		if t.Cancelled() {
			l.metrics.incTimersCancelled()
		} else {
			l.metrics.incTimersExecuted()
		}
		l.ready.pushLocal(&t.Handle)
	}

	l.ready.mergeInbox()

	todo := l.ready.len()
	batch := l.ready.takeDue(todo)
	l.metrics.incReadyExecuted(uint64(len(batch)))
	for _, h := range batch {
		l.execute(h)
	}

	return nil
}

// handleEvents dispatches a poller-reported readiness event by pushing the
// registered handle(s) onto the ready queue, never invoking them inline.
func (l *Loop) handleEvents(fd int, events IOEvents) {
	if events&(EventRead|EventHangup|EventError) != 0 {
		if h, ok := l.readers[fd]; ok {
			l.ready.pushLocal(h)
		}
	}
	if events&(EventWrite|EventError) != 0 {
		if h, ok := l.writers[fd]; ok {
			l.ready.pushLocal(h)
		}
	}
}

// computeTimeout implements step 2 of _run_once: 0 if ready is non-empty,
// else the time until the earliest timer bounded by the configured poll
// timeout, else the poll timeout itself.
func (l *Loop) computeTimeout() time.Duration {
	if l.ready.len() > 0 || l.ready.hasPending() {
		return 0
	}
	if when, ok := l.timers.nextDeadline(); ok {
		d := when.Sub(l.Time())
		if d < 0 {
			d = 0
		}
		if d > l.opts.pollTimeout {
			d = l.opts.pollTimeout
		}
		return d
	}
	return l.opts.pollTimeout
}

// execute runs a single ready handle, recovering any panic and logging it
// through the Failure path rather than letting it escape the iteration.
func (l *Loop) execute(h *Handle) {
	defer func() {
		if r := recover(); r != nil {
			l.logFailure("callback panic", &PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	if h.run() == StepYield {
		l.ready.pushLocal(h)
	}
}

// isLoopThread reports whether the calling goroutine is the one currently
// running this loop.
func (l *Loop) isLoopThread() bool {
	id := l.loopGoroutine
	return id != 0 && getGoroutineID() == id
}

// Close tears down the loop's poller and waker. The loop must not be
// running. Close is idempotent.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.state.store(StateClosed)
		var errs []error
		if err := l.waker.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := l.poller.Close(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			l.closeErr = errs[0]
		}
	})
	return l.closeErr
}

// Shutdown stops the loop if running and closes it, honouring ctx as an
// upper bound on how long to wait for the current iteration to finish.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.Stop()
	for l.state.load() == StateRunning {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return l.Close()
}
