package eventloop

import (
	"runtime"
	"sync"
)

// Policy binds loops to goroutines via two per-goroutine slots: a plain
// "event loop" slot and a "request loop" slot for loops marked CPUBound.
// This goroutine-local binding is a convenience shim; threading a *Loop
// through constructors explicitly is preferable where the call site can do
// that. Policy exists for call sites that cannot.
type Policy struct {
	mu          sync.Mutex
	eventLoops  map[uint64]*Loop
	requestLoop map[uint64]*Loop
}

// NewPolicy returns an empty Policy.
func NewPolicy() *Policy {
	return &Policy{
		eventLoops:  make(map[uint64]*Loop),
		requestLoop: make(map[uint64]*Loop),
	}
}

// DefaultPolicy is the process-wide default Policy instance.
var DefaultPolicy = NewPolicy()

// GetEventLoop returns the loop bound to the calling goroutine's plain slot,
// constructing and binding a new one via newLoop if none is set.
func (p *Policy) GetEventLoop(newLoop func() (*Loop, error)) (*Loop, error) {
	gid := getGoroutineID()

	p.mu.Lock()
	if l, ok := p.eventLoops[gid]; ok {
		p.mu.Unlock()
		return l, nil
	}
	p.mu.Unlock()

	l, err := newLoop()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.eventLoops[gid] = l
	p.mu.Unlock()
	return l, nil
}

// NewEventLoop constructs loop via newLoop without binding it to any slot.
func (p *Policy) NewEventLoop(newLoop func() (*Loop, error)) (*Loop, error) {
	return newLoop()
}

// SetEventLoop binds loop to the calling goroutine's plain slot, or to its
// request-loop slot if loop's poller is CPU-bound. Passing nil clears the
// plain slot.
func (p *Policy) SetEventLoop(loop *Loop) {
	gid := getGoroutineID()
	p.mu.Lock()
	defer p.mu.Unlock()
	if loop == nil {
		delete(p.eventLoops, gid)
		return
	}
	if loop.poller != nil && loop.poller.CPUBound() {
		p.requestLoop[gid] = loop
		return
	}
	p.eventLoops[gid] = loop
}

// SetRequestLoop binds loop to the calling goroutine's CPU-bound request-loop
// slot. Passing nil clears the slot.
func (p *Policy) SetRequestLoop(loop *Loop) {
	gid := getGoroutineID()
	p.mu.Lock()
	defer p.mu.Unlock()
	if loop == nil {
		delete(p.requestLoop, gid)
		return
	}
	p.requestLoop[gid] = loop
}

// GetRequestLoop returns the CPU-bound loop bound to the calling goroutine,
// falling back to the plain event-loop slot if no request loop was set.
func (p *Policy) GetRequestLoop() (*Loop, bool) {
	gid := getGoroutineID()
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.requestLoop[gid]; ok {
		return l, true
	}
	if l, ok := p.eventLoops[gid]; ok {
		return l, true
	}
	return nil, false
}

// getGoroutineID returns the calling goroutine's runtime id, parsed out of
// runtime.Stack. There is no public API for this; it is only used here to
// key the policy's thread-local-style slots, not for anything safety
// critical.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
