// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package eventloop implements a single-threaded, cooperative event loop:
// a reactor that multiplexes timers, I/O readiness, OS signals, cross-thread
// wakeups and inline callbacks, and drives generator-shaped work to
// completion.
//
// # Architecture
//
// [Loop] composes a ready queue (FIFO), a timer min-heap, a pluggable
// [Poller] (epoll on Linux, kqueue on Darwin/BSD), a cross-thread [Waker],
// and an optional signal multiplexer and [LoopingCall] facility. Exactly one
// goroutine, the one that calls [Loop.Run] or [Loop.RunForever], ever
// touches the ready queue or dispatches poller events; every other entry
// point funnels through a small, explicitly thread-safe set of methods.
//
// # Platform support
//
//   - Linux: epoll, eventfd.
//   - Darwin, FreeBSD, NetBSD, OpenBSD, DragonFly BSD: kqueue, self-pipe.
//
// # Thread safety
//
//   - [Loop.CallSoonThreadsafe], [Loop.CallAt], [Loop.CallLater], [Loop.Stop],
//     [Handle.Cancel] and [Waker.Wake] are safe from any goroutine.
//   - [Loop.CallSoon], [Loop.AddReader], [Loop.AddWriter], [Loop.AddSignalHandler]
//     and friends require the loop goroutine, or that the loop is not yet
//     running.
//   - [Loop.Metrics] snapshots are plain atomic reads, safe from any goroutine.
//
// # Execution model
//
// Each iteration: compute a poll timeout, poll for I/O readiness, push
// ready file descriptors onto the ready queue, drain due timers onto the
// ready queue, merge cross-goroutine submissions, then run exactly as many
// handles as the ready queue held at that point; handles queued while they
// run wait for the next iteration. Callbacks returning a [Step] are treated
// as a task and rescheduled until they report [StepDone]. Panics raised by
// callbacks are recovered, wrapped as a [Failure] and logged; they never
// escape [Loop.Run].
//
// # Usage
//
//	loop, err := eventloop.New(eventloop.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	loop.CallSoon(func() eventloop.Step {
//	    fmt.Println("hello from the loop")
//	    loop.Stop()
//	    return eventloop.StepDone
//	})
//
//	if err := loop.RunForever(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error types
//
//   - [PanicError] wraps a panic recovered from a callback.
//   - [Failure] reports an unhandled callback error through the configured
//     logger.
//   - [Loop.Stop] sets an internal flag observed at the top and bottom of
//     each iteration, unwinding the run loop cleanly without raising an error.
//   - [ErrImproperlyConfigured] is returned by [Loop.RunInExecutor] when no
//     executor is configured.
//
// # Networking
//
// [SockConnect], [CreateConnection], [CreateServer] and
// [CreateDatagramEndpoint] adapt non-blocking TCP/UDP sockets onto the loop's
// reader/writer/connector registration, retrying on EAGAIN instead of
// blocking a goroutine per connection.
package eventloop
