package eventloop

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_AddHandlerFiresOnSignal(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	fired := make(chan struct{}, 1)
	h, err := loop.AddSignalHandler(syscall.SIGUSR1, func() Step {
		fired <- struct{}{}
		loop.Stop()
		return StepDone
	})
	require.NoError(t, err)
	defer loop.RemoveSignalHandler(syscall.SIGUSR1)
	defer h.Cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	}()

	_, err = loop.CallLater(2*time.Second, func() Step {
		loop.Stop()
		return StepDone
	})
	require.NoError(t, err)

	require.NoError(t, loop.RunForever())
	select {
	case <-fired:
	default:
		t.Fatal("signal handler never fired")
	}
}

func TestSignal_SecondLoopCannotOwnTable(t *testing.T) {
	loop1, err := New()
	require.NoError(t, err)
	defer loop1.Close()
	loop2, err := New()
	require.NoError(t, err)
	defer loop2.Close()

	_, err = loop1.AddSignalHandler(syscall.SIGUSR2, func() Step { return StepDone })
	require.NoError(t, err)
	defer loop1.RemoveSignalHandler(syscall.SIGUSR2)

	_, err = loop2.AddSignalHandler(syscall.SIGUSR2, func() Step { return StepDone })
	assert.ErrorIs(t, err, ErrSignalOwned)
}

func TestSignal_AddHandlerRejectsUncatchableSignal(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	_, err = loop.AddSignalHandler(syscall.SIGKILL, func() Step { return StepDone })
	assert.ErrorIs(t, err, ErrInvalidSignal)

	_, err = loop.AddSignalHandler(syscall.SIGSTOP, func() Step { return StepDone })
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestSignal_RemoveHandlerReportsWhetherRemoved(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	assert.False(t, loop.RemoveSignalHandler(syscall.SIGUSR1))

	_, err = loop.AddSignalHandler(syscall.SIGUSR1, func() Step { return StepDone })
	require.NoError(t, err)
	assert.True(t, loop.RemoveSignalHandler(syscall.SIGUSR1))
}
