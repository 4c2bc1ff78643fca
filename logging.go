package eventloop

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Event is the logiface event type this package logs through; it is an
// alias of the logiface-slog adapter's Event so any slog.Handler (JSON,
// text, or a third-party handler) can back the loop's logger.
type Event = islog.Event

// defaultLogger builds a logiface.Logger writing JSON lines to stderr,
// used when New is called without WithLogger.
func defaultLogger() *logiface.Logger[*Event] {
	handler := slog.NewJSONHandler(os.Stderr, nil)
	return islog.L.New(islog.L.WithSlogHandler(handler))
}

// logFailure reports a callback error or recovered panic at Error level,
// via the Failure type, which exposes a Log(msg) method for reporting
// unhandled callback errors.
func (l *Loop) logFailure(context string, err error) {
	newFailure(err, l.newFailureLogger()).Log(context)
}

// logPollError reports a non-transient poll() error at Error level.
func (l *Loop) logPollError(err error) {
	l.opts.logger.Err().Err(err).Log("poll error")
}

// logOverload reports a condition the loop considers noteworthy but not
// fatal, e.g. a LoopingCall falling behind its interval.
func (l *Loop) logOverload(msg string, delay float64) {
	l.opts.logger.Warning().Str("reason", msg).Float64("delay_seconds", delay).Log("loop overload")
}

// newFailureLogger adapts the loop's structured logger to the small
// func(msg string, err error) contract Failure.Log expects.
func (l *Loop) newFailureLogger() func(string, error) {
	return func(msg string, err error) {
		l.opts.logger.Err().Err(err).Log(msg)
	}
}
