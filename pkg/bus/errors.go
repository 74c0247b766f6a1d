package bus

import (
	"errors"
)

var (
	// ErrTimeout indicates a transmit or receive did not complete in time.
	// For Receive it's the expected result of an idle bus.
	ErrTimeout = errors.New("bus: timeout")
	// ErrBusOff indicates the controller entered the bus-off condition and
	// needs full reinitialization.
	ErrBusOff = errors.New("bus: bus-off")
	// ErrInvalidState indicates the controller is not ready, e.g. it is
	// stopped or a recovery is in progress.
	ErrInvalidState = errors.New("bus: invalid state")
	// ErrUnsupported indicates the driver is not available on this platform.
	ErrUnsupported = errors.New("bus: unsupported")
)

// OpError reports which lifecycle step failed.
type OpError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *OpError) Error() string {
	return "bus: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// IsFault reports whether err requires the controller to be reinitialized.
func IsFault(err error) bool {
	return errors.Is(err, ErrBusOff) || errors.Is(err, ErrInvalidState)
}
