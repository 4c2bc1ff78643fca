package eventloop

import (
	"reflect"
	"sync"
)

// Future is the minimal contract the loop depends on for driving
// coroutine/task-shaped work to completion: something that exposes Done,
// Result, AddDoneCallback and RemoveDoneCallback.
type Future interface {
	Done() bool
	Result() (any, error)
	AddDoneCallback(cb func(Future))
	RemoveDoneCallback(cb func(Future)) bool
}

// Deferred is the concrete Future this package ships. It is not a full
// Promise/A+ implementation, just enough to make the loop runnable and
// testable standalone.
type Deferred struct {
	mu        sync.Mutex
	done      bool
	value     any
	err       error
	callbacks []func(Future)
}

// NewDeferred returns a new, unresolved Deferred.
func NewDeferred() *Deferred {
	return &Deferred{}
}

// Done reports whether the Deferred has been resolved or rejected.
func (d *Deferred) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Result returns the resolved value and error. Calling it before Done is
// true returns (nil, nil).
func (d *Deferred) Result() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err
}

// Resolve marks the Deferred done with the given value, firing any
// registered callbacks. A second call is a no-op.
func (d *Deferred) Resolve(value any) {
	d.settle(value, nil)
}

// Reject marks the Deferred done with the given error, firing any
// registered callbacks. A second call is a no-op.
func (d *Deferred) Reject(err error) {
	d.settle(nil, err)
}

func (d *Deferred) settle(value any, err error) {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return
	}
	d.done = true
	d.value = value
	d.err = err
	callbacks := d.callbacks
	d.callbacks = nil
	d.mu.Unlock()

	for _, cb := range callbacks {
		cb(d)
	}
}

// AddDoneCallback registers cb to run once the Deferred settles. If it has
// already settled, cb runs synchronously.
func (d *Deferred) AddDoneCallback(cb func(Future)) {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		cb(d)
		return
	}
	d.callbacks = append(d.callbacks, cb)
	d.mu.Unlock()
}

// RemoveDoneCallback removes a previously registered callback, comparing by
// function identity is not possible in Go for arbitrary closures, so this
// removes by the last-registered match scanning from the end; callers that
// need precise removal should wrap their callback in a struct and close over
// a pointer to it. Returns whether anything was removed.
func (d *Deferred) RemoveDoneCallback(cb func(Future)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.callbacks) - 1; i >= 0; i-- {
		if sameFunc(d.callbacks[i], cb) {
			d.callbacks = append(d.callbacks[:i], d.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// sameFunc compares two func values by code pointer, the usual Go idiom for
// "did the caller pass back the same callback" when closures can't satisfy
// comparable.
func sameFunc(a, b func(Future)) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// TaskFactory adapts a generator-shaped step function into a Future bound to
// loop: it is invoked repeatedly via CallSoon until it reports StepDone,
// and its final error (if any) settles the returned Deferred. It is a
// statically-typed alternative to detecting generator functions at runtime:
// each step returns a tagged Step result (StepDone or StepYield) instead.
type TaskFactory func(loop *Loop, step func() (Step, any, error)) Future

// defaultTaskFactory is the package's TaskFactory implementation. New does
// not install it, and there is no option to supply a different one.
func defaultTaskFactory(loop *Loop, step func() (Step, any, error)) Future {
	d := NewDeferred()
	var advance func()
	advance = func() {
		s, value, err := step()
		if err != nil {
			d.Reject(err)
			return
		}
		if s == StepDone {
			d.Resolve(value)
			return
		}
		_, _ = loop.CallSoon(func() Step {
			advance()
			return StepDone
		})
	}
	advance()
	return d
}
