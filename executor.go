package eventloop

// Executor runs a blocking function off the loop goroutine and reports its
// result as a Future.
type Executor interface {
	Apply(fn func() (any, error)) Future
}

// PoolExecutor is a goroutine-per-task Executor. It settles the returned
// Deferred by calling back onto the owning loop's goroutine via
// CallSoonThreadsafe, funnelling goroutine results back through a
// thread-safe submission point rather than resolving directly from the
// worker goroutine.
type PoolExecutor struct {
	loop *Loop
	sem  chan struct{}
}

// NewPoolExecutor returns an Executor bound to loop, limited to maxInFlight
// concurrent goroutines (0 means unbounded).
func NewPoolExecutor(loop *Loop, maxInFlight int) *PoolExecutor {
	var sem chan struct{}
	if maxInFlight > 0 {
		sem = make(chan struct{}, maxInFlight)
	}
	return &PoolExecutor{loop: loop, sem: sem}
}

// Apply runs fn on a new goroutine and resolves the returned Future on the
// loop goroutine once fn returns.
func (e *PoolExecutor) Apply(fn func() (any, error)) Future {
	d := NewDeferred()
	if e.sem != nil {
		e.sem <- struct{}{}
	}
	go func() {
		if e.sem != nil {
			defer func() { <-e.sem }()
		}
		value, err := func() (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r}
				}
			}()
			return fn()
		}()

		_ = e.loop.CallSoonThreadsafe(func() Step {
			if err != nil {
				d.Reject(err)
			} else {
				d.Resolve(value)
			}
			return StepDone
		})
	}()
	return d
}
