package eventloop

import "sync/atomic"

// Waker is the cross-thread primitive that breaks a blocking Poll call.
// Wake is idempotent and safe from any goroutine, including a signal
// handler; the read side coalesces multiple pending wakes into a single
// drain.
type Waker struct {
	readFD  int
	writeFD int
	pending atomic.Bool
}

// newWaker creates the platform wake-fd pair (eventfd on Linux, a
// non-blocking self-pipe elsewhere) via createWakeFd, implemented in
// wakeup_linux.go / wakeup_darwin.go.
func newWaker() (*Waker, error) {
	r, w, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	return &Waker{readFD: r, writeFD: w}, nil
}

// Fileno returns the read end, the descriptor the poller registers.
func (w *Waker) Fileno() int { return w.readFD }

// Wake performs at most one pending write; concurrent callers coalesce onto
// the same wake. Never blocks.
func (w *Waker) Wake() (wrote bool) {
	if !w.pending.CompareAndSwap(false, true) {
		return false
	}
	writeWakeByte(w.writeFD)
	return true
}

// drain clears pending wake bytes and resets the pending flag. Called by the
// loop's no-op read handler registered against readFD.
func (w *Waker) drain() {
	drainWakeFD(w.readFD)
	w.pending.Store(false)
}

// Close releases the wake fd(s).
func (w *Waker) Close() error {
	return closeWakeFD(w.readFD, w.writeFD)
}
