//go:build linux || darwin

package eventloop

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformPoller_ReportsReadReadiness(t *testing.T) {
	p, err := newPlatformPoller()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, p.AddReader(int(r.Fd())))
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	events, err := p.Poll(time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, int(r.Fd()), events[0].FD)
	assert.NotZero(t, events[0].Events&EventRead)
}

func TestPlatformPoller_PollTimesOutWithNoEvents(t *testing.T) {
	p, err := newPlatformPoller()
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	events, err := p.Poll(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.True(t, time.Since(start) >= 15*time.Millisecond)
}

func TestPlatformPoller_RemoveReaderReportsExisted(t *testing.T) {
	p, err := newPlatformPoller()
	require.NoError(t, err)
	defer p.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, p.AddReader(int(r.Fd())))
	removed, err := p.RemoveReader(int(r.Fd()))
	require.NoError(t, err)
	assert.True(t, removed)

	removedAgain, err := p.RemoveReader(int(r.Fd()))
	require.NoError(t, err)
	assert.False(t, removedAgain)
}

func TestNoopPoller_WaitsOnWakerFD(t *testing.T) {
	w, err := newWaker()
	require.NoError(t, err)
	defer w.Close()

	p := newNoopPoller()
	require.NoError(t, p.AddReader(w.Fileno()))

	w.Wake()
	events, err := p.Poll(time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, w.Fileno(), events[0].FD)
}

func TestNoopPoller_CPUBound(t *testing.T) {
	p := newNoopPoller()
	assert.True(t, p.CPUBound())
}
