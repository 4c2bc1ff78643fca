package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLoopOptions_Defaults(t *testing.T) {
	cfg, err := resolveLoopOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.pollTimeout)
	assert.False(t, cfg.cpuBound)
	assert.False(t, cfg.ioThreadLoop)
	assert.Nil(t, cfg.poller)
}

func TestResolveLoopOptions_AppliesOverrides(t *testing.T) {
	exec := NewPoolExecutor(nil, 1)
	cfg, err := resolveLoopOptions([]Option{
		WithPollTimeout(5 * time.Second),
		WithCPUBound(true),
		WithIOThreadLoop(true),
		WithDefaultExecutor(exec),
		WithMetrics(true),
	})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.pollTimeout)
	assert.True(t, cfg.cpuBound)
	assert.True(t, cfg.ioThreadLoop)
	assert.Same(t, Executor(exec), cfg.executor)
	assert.True(t, cfg.metricsEnable)
}

func TestResolveLoopOptions_SkipsNilOption(t *testing.T) {
	cfg, err := resolveLoopOptions([]Option{nil, WithCPUBound(true)})
	require.NoError(t, err)
	assert.True(t, cfg.cpuBound)
}
