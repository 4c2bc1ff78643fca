package eventloop

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// uncatchableSignals are the signals no process may install a handler for.
var uncatchableSignals = map[os.Signal]struct{}{
	syscall.SIGKILL: {},
	syscall.SIGSTOP: {},
}

// signalTable maps OS signals to the Handle that should run when they
// arrive. It is process-global by necessity: only one loop per process may
// own it.
type signalTable struct {
	mu       sync.Mutex
	owner    *Loop
	handlers map[os.Signal]*Handle
	ch       chan os.Signal
	stop     chan struct{}
}

// globalSignalTable is the single process-wide signal table.
var globalSignalTable = &signalTable{
	handlers: make(map[os.Signal]*Handle),
}

// AddSignalHandler installs cb to run when sig arrives, returning the
// installed Handle. Only one loop per process may install signal handlers;
// a second loop attempting to do so gets ErrSignalOwned.
//
// The OS-facing half of this multiplexer is a single goroutine reading from
// the channel os/signal.Notify already delivers on, never true
// signal-handler context, so routing the callback through
// CallSoonThreadsafe (and therefore through the waker) is both safe and the
// natural Go idiom, without a custom signal-handler trampoline.
func (l *Loop) AddSignalHandler(sig os.Signal, cb Callback) (*Handle, error) {
	if _, uncatchable := uncatchableSignals[sig]; uncatchable {
		return nil, ErrInvalidSignal
	}

	t := globalSignalTable
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owner != nil && t.owner != l {
		return nil, ErrSignalOwned
	}

	h := newHandle(cb)
	if t.owner == nil {
		t.owner = l
		t.ch = make(chan os.Signal, 8)
		t.stop = make(chan struct{})
		go t.dispatchLoop(l)
	}
	t.handlers[sig] = h
	signal.Notify(t.ch, sig)
	return h, nil
}

// RemoveSignalHandler removes the handler for sig, restoring default
// disposition. Returns whether a handler was removed.
func (l *Loop) RemoveSignalHandler(sig os.Signal) bool {
	t := globalSignalTable
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.owner != l {
		return false
	}
	if _, ok := t.handlers[sig]; !ok {
		return false
	}
	delete(t.handlers, sig)
	signal.Reset(sig)

	if len(t.handlers) == 0 {
		close(t.stop)
		t.owner = nil
		t.ch = nil
		t.stop = nil
	}
	return true
}

// dispatchLoop is the single goroutine reading signals delivered by
// os/signal and routing them onto the owning loop via CallSoonThreadsafe.
func (t *signalTable) dispatchLoop(owner *Loop) {
	for {
		select {
		case sig := <-t.ch:
			t.mu.Lock()
			h, ok := t.handlers[sig]
			t.mu.Unlock()
			if !ok {
				continue
			}
			_ = owner.CallSoonThreadsafe(h.run)
		case <-t.stop:
			return
		}
	}
}
