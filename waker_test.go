//go:build linux || darwin

package eventloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaker_WakeCoalescesUntilDrained(t *testing.T) {
	w, err := newWaker()
	require.NoError(t, err)
	defer w.Close()

	first := w.Wake()
	second := w.Wake()
	assert.True(t, first)
	assert.False(t, second, "a second Wake before drain must coalesce")

	w.drain()
	third := w.Wake()
	assert.True(t, third, "Wake after drain must write again")
}

func TestWaker_FilenoNonNegative(t *testing.T) {
	w, err := newWaker()
	require.NoError(t, err)
	defer w.Close()

	assert.GreaterOrEqual(t, w.Fileno(), 0)
}

func TestWaker_CloseReturnsNoError(t *testing.T) {
	w, err := newWaker()
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
