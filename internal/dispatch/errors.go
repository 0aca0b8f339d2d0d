package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrAlreadyRun is returned by Run on every call after the first.
	ErrAlreadyRun = errors.New("dispatcher already ran")
	// ErrRunning is reported by Err when a registration arrived after Run started.
	ErrRunning = errors.New("dispatcher is running; registration rejected")
)

// ConfigurationError reports an invalid dispatcher configuration. It is
// returned by New before anything is streamed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dispatch config: %s %s", e.Field, e.Reason)
}

// PanicError carries a panic recovered from a streamer or callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was an error itself.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsClientDisconnect reports whether err means the client went away: a
// broken pipe, a reset connection, a closed stream, or the request context
// being cancelled.
func IsClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		return false
	}
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, context.Canceled)
}
