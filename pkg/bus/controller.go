package bus

import (
	"context"
	"time"

	"github.com/robotalks/canlink/pkg/can"
)

// Controller is the bus controller hardware seam. Only Manager drives the
// lifecycle methods.
//
// Transmit and Receive must return ErrInvalidState when the controller is not
// started, including when Stop is called while they are blocked. A negative
// timeout waits forever, zero doesn't wait.
type Controller interface {
	// Install allocates the controller with the given configuration.
	Install(Config) error
	// Uninstall releases everything Install allocated.
	Uninstall() error
	// Start begins bus participation.
	Start() error
	// Stop ends bus participation.
	Stop() error
	// Transmit queues one frame for transmission.
	Transmit(ctx context.Context, frame can.Frame, timeout time.Duration) error
	// Receive waits for one inbound frame.
	Receive(ctx context.Context, timeout time.Duration) (can.Frame, error)
}
