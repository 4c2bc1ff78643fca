package eventloop

import "sync/atomic"

// LoopState is the small closed set of states a Loop moves through. Running
// is tracked as an explicit state rather than inferred from some other
// field.
type LoopState uint32

const (
	// StateAwake is the initial state: constructed, not yet run.
	StateAwake LoopState = iota
	// StateRunning indicates a goroutine is currently inside Run/RunForever.
	StateRunning
	// StateStopping is part of the state set but the loop never enters it:
	// Stop sets a separate flag, and the state stays StateRunning until the
	// run returns.
	StateStopping
	// StateClosed indicates Close has been called; the loop cannot be run
	// again.
	StateClosed
)

func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// loopState is a small atomic wrapper, kept separate from Loop itself so its
// transitions are easy to reason about independent of the rest of the
// struct's fields.
type loopState struct {
	v atomic.Uint32
}

func (s *loopState) load() LoopState {
	return LoopState(s.v.Load())
}

func (s *loopState) store(state LoopState) {
	s.v.Store(uint32(state))
}

// compareAndSwap attempts from -> to, returning whether it succeeded.
func (s *loopState) compareAndSwap(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

func (s *loopState) isRunning() bool {
	return s.load() == StateRunning
}

func (s *loopState) isClosed() bool {
	return s.load() == StateClosed
}
