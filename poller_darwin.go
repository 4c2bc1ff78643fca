//go:build darwin || freebsd || netbsd || openbsd || dragonfly

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

// kqueuePoller is the BSD/Darwin Poller implementation: a kqueue instance
// tracking a single combined read/write filter mask per fd.
type kqueuePoller struct {
	kq int

	mu  sync.Mutex
	fds map[int]*fdState

	eventBuf [256]unix.Kevent_t
}

func newKqueuePoller() (*kqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{
		kq:  kq,
		fds: make(map[int]*fdState),
	}, nil
}

func (p *kqueuePoller) Fileno() int { return p.kq }

func (p *kqueuePoller) CPUBound() bool { return false }

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}

func (p *kqueuePoller) AddReader(fd int) error {
	return p.changeOne(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE, true)
}

func (p *kqueuePoller) AddWriter(fd int) error {
	return p.changeOne(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE, false)
}

func (p *kqueuePoller) changeOne(fd int, filter int16, flags uint16, read bool) error {
	p.mu.Lock()
	st, ok := p.fds[fd]
	if !ok {
		st = &fdState{}
		p.fds[fd] = st
	}
	if read {
		st.read = true
	} else {
		st.write = true
	}
	p.mu.Unlock()

	kev := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (p *kqueuePoller) RemoveReader(fd int) (bool, error) {
	return p.removeOne(fd, unix.EVFILT_READ, true)
}

func (p *kqueuePoller) RemoveWriter(fd int) (bool, error) {
	return p.removeOne(fd, unix.EVFILT_WRITE, false)
}

func (p *kqueuePoller) removeOne(fd int, filter int16, read bool) (bool, error) {
	p.mu.Lock()
	st, ok := p.fds[fd]
	if !ok {
		p.mu.Unlock()
		return false, nil
	}
	var removed bool
	if read && st.read {
		st.read = false
		removed = true
	}
	if !read && st.write {
		st.write = false
		removed = true
	}
	if !st.read && !st.write {
		delete(p.fds, fd)
	}
	p.mu.Unlock()

	if !removed {
		return false, nil
	}

	kev := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: unix.EV_DELETE}
	// EV_DELETE on an already-closed fd returns ENOENT; that's fine, the
	// registration is gone either way.
	_, _ = unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
	return true, nil
}

func (p *kqueuePoller) Poll(timeout time.Duration) ([]PollEvent, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeout / time.Second),
			Nsec: int64(timeout % time.Second),
		}
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]PollEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, PollEvent{
			FD:     int(p.eventBuf[i].Ident),
			Events: keventToEvents(&p.eventBuf[i]),
		})
	}
	return out, nil
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}

// newPlatformPoller constructs the default Poller for this platform.
func newPlatformPoller() (Poller, error) {
	return newKqueuePoller()
}
