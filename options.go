// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"time"

	"github.com/joeycumines/logiface"
)

// loopOptions holds the resolved configuration for Loop creation: the
// poller, logger, poll timeout, I/O-thread flag, CPU-bound flag and default
// executor.
type loopOptions struct {
	poller        Poller
	logger        *logiface.Logger[*Event]
	pollTimeout   time.Duration
	ioThreadLoop  bool
	cpuBound      bool
	executor      Executor
	metricsEnable bool
}

// Option configures a Loop instance.
type Option interface {
	applyLoop(*loopOptions) error
}

type loopOptionFunc func(*loopOptions) error

func (f loopOptionFunc) applyLoop(opts *loopOptions) error { return f(opts) }

// WithPoller supplies a pre-constructed Poller instead of the platform
// default (epoll on Linux, kqueue on Darwin/BSD). Mainly useful for tests
// that want a fake Poller.
func WithPoller(p Poller) Option {
	return loopOptionFunc(func(opts *loopOptions) error {
		opts.poller = p
		return nil
	})
}

// WithLogger installs the structured logger used to report Failures, poll
// errors and overload conditions.
func WithLogger(logger *logiface.Logger[*Event]) Option {
	return loopOptionFunc(func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	})
}

// WithPollTimeout bounds how long a single poll() call may block when there
// is no ready or scheduled work. Defaults to 1s.
func WithPollTimeout(d time.Duration) Option {
	return loopOptionFunc(func(opts *loopOptions) error {
		opts.pollTimeout = d
		return nil
	})
}

// WithIOThreadLoop marks the loop as dedicated to a single OS thread for the
// lifetime of Run (LockOSThread). Needed when signal handling or a
// CPU-bound poller requires a stable OS thread identity.
func WithIOThreadLoop(enabled bool) Option {
	return loopOptionFunc(func(opts *loopOptions) error {
		opts.ioThreadLoop = enabled
		return nil
	})
}

// WithCPUBound marks the loop as CPU-bound, for the "request loop" policy
// slot: its poller is a no-op and the loop is intended to run computation
// heavy callbacks handed off via Policy.GetRequestLoop.
func WithCPUBound(enabled bool) Option {
	return loopOptionFunc(func(opts *loopOptions) error {
		opts.cpuBound = enabled
		return nil
	})
}

// WithDefaultExecutor installs the Executor used by RunInExecutor when the
// caller does not supply one explicitly.
func WithDefaultExecutor(e Executor) Option {
	return loopOptionFunc(func(opts *loopOptions) error {
		opts.executor = e
		return nil
	})
}

// WithMetrics enables the loop's lightweight tick/queue-depth counters,
// readable via Loop.Metrics().
func WithMetrics(enabled bool) Option {
	return loopOptionFunc(func(opts *loopOptions) error {
		opts.metricsEnable = enabled
		return nil
	})
}

// resolveLoopOptions applies Option values over the defaults.
func resolveLoopOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{
		pollTimeout: time.Second,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
