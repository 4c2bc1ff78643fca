package eventloop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPanicError_UnwrapsErrorValue(t *testing.T) {
	cause := errors.New("cause")
	pe := &PanicError{Value: cause}
	assert.ErrorIs(t, pe, cause)
}

func TestPanicError_NonErrorValueHasNoUnwrap(t *testing.T) {
	pe := &PanicError{Value: "not an error"}
	assert.Nil(t, pe.Unwrap())
	assert.Contains(t, pe.Error(), "not an error")
}

func TestFailure_LogInvokesConfiguredSink(t *testing.T) {
	cause := errors.New("boom")
	var gotMsg string
	var gotErr error
	f := newFailure(cause, func(msg string, err error) {
		gotMsg = msg
		gotErr = err
	})

	f.Log("context message")
	assert.Equal(t, "context message", gotMsg)
	assert.Equal(t, cause, gotErr)
	assert.ErrorIs(t, f, cause)
}
