package eventloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// IOEvents is a bit-flag set describing readiness on a file descriptor.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// PollEvent is one (fd, event mask) pair returned by a Poll call.
type PollEvent struct {
	FD     int
	Events IOEvents
}

// Poller is the abstract I/O readiness source the loop depends on. The loop
// never talks to epoll/kqueue directly; it only calls through this
// interface, which the platform files in this package (poller_linux.go,
// poller_darwin.go) implement.
type Poller interface {
	// Fileno returns a descriptor suitable for close-on-exec bookkeeping.
	Fileno() int

	// AddReader registers fd for read readiness, replacing any existing
	// reader registration.
	AddReader(fd int) error
	// AddWriter registers fd for write readiness, replacing any existing
	// writer registration.
	AddWriter(fd int) error
	// RemoveReader removes fd's read registration, if any. Reports whether
	// something was removed.
	RemoveReader(fd int) (bool, error)
	// RemoveWriter removes fd's write registration, if any. Reports whether
	// something was removed.
	RemoveWriter(fd int) (bool, error)

	// Poll blocks for up to timeout for readiness, returning every ready
	// (fd, events) pair. A negative timeout blocks indefinitely; Poll must
	// be interruptible by the installed waker fd. Implementations MAY
	// return earlier than timeout.
	Poll(timeout time.Duration) ([]PollEvent, error)

	// CPUBound reports whether this poller is a no-op stand-in used for a
	// dedicated CPU-bound loop.
	CPUBound() bool

	// Close releases the poller's own file descriptor.
	Close() error
}

// noopPoller is the Poller used by a CPU-bound loop: it watches nothing
// of its own, but the loop still registers the waker fd with it (every
// Poller, including this one, must be interruptible by CallSoonThreadsafe),
// so Poll waits on that one fd via poll(2) directly rather than through
// epoll/kqueue machinery such a loop has no other use for.
type noopPoller struct {
	wakeFD int
}

func newNoopPoller() *noopPoller {
	return &noopPoller{wakeFD: -1}
}

func (p *noopPoller) Fileno() int { return -1 }

func (p *noopPoller) AddReader(fd int) error {
	p.wakeFD = fd
	return nil
}

func (p *noopPoller) AddWriter(fd int) error            { return nil }
func (p *noopPoller) RemoveReader(fd int) (bool, error) { return false, nil }
func (p *noopPoller) RemoveWriter(fd int) (bool, error) { return false, nil }
func (p *noopPoller) CPUBound() bool                    { return true }
func (p *noopPoller) Close() error                      { return nil }

func (p *noopPoller) Poll(timeout time.Duration) ([]PollEvent, error) {
	if p.wakeFD < 0 {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil, nil
	}

	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}
	fds := []unix.PollFd{{Fd: int32(p.wakeFD), Events: unix.POLLIN}}
	_, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if isTransientPollError != nil && isTransientPollError(err) {
			return nil, nil
		}
		return nil, err
	}
	if fds[0].Revents&unix.POLLIN != 0 {
		return []PollEvent{{FD: p.wakeFD, Events: EventRead}}, nil
	}
	return nil, nil
}

// isTransientPollError classifies poll() errors the loop should swallow
// rather than propagate (EINTR and the like). Platform files provide the
// concrete classifier; this indirection lets loop.go stay platform-agnostic.
var isTransientPollError func(error) bool
