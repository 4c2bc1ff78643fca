//go:build linux

package eventloop

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

func init() {
	isTransientPollError = func(err error) bool {
		return err == unix.EINTR
	}
}

// fdState tracks which of read/write this package has registered for an fd,
// since epoll's event mask for a given fd is a single combined registration.
type fdState struct {
	read  bool
	write bool
}

// epollPoller is the Linux Poller implementation: an epoll instance tracking
// a single combined read/write registration per fd. Poll returns readiness
// only; the loop pushes onto its own ready queue rather than dispatching
// callbacks inline.
type epollPoller struct {
	epfd int

	mu  sync.Mutex
	fds map[int]*fdState

	eventBuf [256]unix.EpollEvent
}

func newEpollPoller() (*epollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd: epfd,
		fds:  make(map[int]*fdState),
	}, nil
}

func (p *epollPoller) Fileno() int { return p.epfd }

func (p *epollPoller) CPUBound() bool { return false }

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) AddReader(fd int) error {
	return p.register(fd, true, false)
}

func (p *epollPoller) AddWriter(fd int) error {
	return p.register(fd, false, true)
}

func (p *epollPoller) register(fd int, read, write bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, exists := p.fds[fd]
	op := unix.EPOLL_CTL_MOD
	if !exists {
		st = &fdState{}
		p.fds[fd] = st
		op = unix.EPOLL_CTL_ADD
	}
	if read {
		st.read = true
	}
	if write {
		st.write = true
	}

	ev := &unix.EpollEvent{Events: maskFor(st), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, op, fd, ev); err != nil {
		return err
	}
	return nil
}

func (p *epollPoller) RemoveReader(fd int) (bool, error) {
	return p.unregister(fd, true, false)
}

func (p *epollPoller) RemoveWriter(fd int) (bool, error) {
	return p.unregister(fd, false, true)
}

func (p *epollPoller) unregister(fd int, read, write bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.fds[fd]
	if !ok {
		return false, nil
	}
	var removed bool
	if read && st.read {
		st.read = false
		removed = true
	}
	if write && st.write {
		st.write = false
		removed = true
	}
	if !removed {
		return false, nil
	}

	if !st.read && !st.write {
		delete(p.fds, fd)
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			return true, err
		}
		return true, nil
	}

	ev := &unix.EpollEvent{Events: maskFor(st), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return true, err
	}
	return true, nil
}

func maskFor(st *fdState) uint32 {
	var m uint32
	if st.read {
		m |= unix.EPOLLIN
	}
	if st.write {
		m |= unix.EPOLLOUT
	}
	return m
}

func (p *epollPoller) Poll(timeout time.Duration) ([]PollEvent, error) {
	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]PollEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, PollEvent{
			FD:     int(p.eventBuf[i].Fd),
			Events: epollToEvents(p.eventBuf[i].Events),
		})
	}
	return out, nil
}

func epollToEvents(mask uint32) IOEvents {
	var events IOEvents
	if mask&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if mask&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if mask&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if mask&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}

// newPlatformPoller constructs the default Poller for this platform.
func newPlatformPoller() (Poller, error) {
	return newEpollPoller()
}
