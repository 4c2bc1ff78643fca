package eventloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopState_CompareAndSwapTransitions(t *testing.T) {
	var s loopState
	assert.Equal(t, StateAwake, s.load())

	assert.True(t, s.compareAndSwap(StateAwake, StateRunning))
	assert.True(t, s.isRunning())

	assert.False(t, s.compareAndSwap(StateAwake, StateClosed), "CAS from the wrong current state must fail")
	assert.True(t, s.compareAndSwap(StateRunning, StateClosed))
	assert.True(t, s.isClosed())
}

func TestLoopState_String(t *testing.T) {
	assert.Equal(t, "Awake", StateAwake.String())
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Stopping", StateStopping.String())
	assert.Equal(t, "Closed", StateClosed.String())
}
