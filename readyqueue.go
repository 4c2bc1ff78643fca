package eventloop

import "sync"

// readyQueue is the loop's FIFO of due handles. The active slice is touched
// only by the loop goroutine; cross-thread submissions land in a separate
// mutex-guarded inbox and are merged in once per iteration, after poll
// events and due timers and before the execution pass, a batch-swap that
// avoids holding the inbox lock while draining.
type readyQueue struct {
	active []*Handle // loop-goroutine only

	inboxMu sync.Mutex
	inbox   []*Handle // cross-thread submissions awaiting merge
}

// pushLocal appends a handle directly to the active queue. Callable only
// from the loop goroutine (call_soon).
func (q *readyQueue) pushLocal(h *Handle) {
	q.active = append(q.active, h)
}

// pushRemote appends a handle to the cross-thread inbox (call_soon_threadsafe).
// Safe from any goroutine.
func (q *readyQueue) pushRemote(h *Handle) {
	q.inboxMu.Lock()
	q.inbox = append(q.inbox, h)
	q.inboxMu.Unlock()
}

// mergeInbox moves any pending cross-thread submissions onto the end of the
// active queue. Called once per iteration from the loop goroutine.
func (q *readyQueue) mergeInbox() {
	q.inboxMu.Lock()
	if len(q.inbox) == 0 {
		q.inboxMu.Unlock()
		return
	}
	pending := q.inbox
	q.inbox = nil
	q.inboxMu.Unlock()
	q.active = append(q.active, pending...)
}

// takeDue removes and returns exactly n handles from the front of the active
// queue, preserving FIFO order. Handles enqueued after this call (including
// by the handles it returns) are left for a later iteration: each iteration
// runs only as many handles as were ready at its start, a snapshot count
// taken before any of them execute.
func (q *readyQueue) takeDue(n int) []*Handle {
	if n <= 0 {
		return nil
	}
	if n > len(q.active) {
		n = len(q.active)
	}
	due := make([]*Handle, n)
	copy(due, q.active[:n])
	// Copy remaining down so the backing array doesn't grow unboundedly
	// across a long-running loop. due is a separate backing array, so this
	// shift cannot alias (and overwrite) what due points at.
	q.active = append(q.active[:0], q.active[n:]...)
	return due
}

// len reports the number of handles currently in the active queue. Must be
// called from the loop goroutine.
func (q *readyQueue) len() int {
	return len(q.active)
}

// hasPending reports whether the cross-thread inbox has unmerged work.
// Safe from any goroutine; used for the "active" invariant snapshot.
func (q *readyQueue) hasPending() bool {
	q.inboxMu.Lock()
	defer q.inboxMu.Unlock()
	return len(q.inbox) > 0
}
