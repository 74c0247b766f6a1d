// +build !linux

package socketcan

import (
	"context"
	"time"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
)

// Controller is unavailable outside Linux; Install always fails.
type Controller struct {
	Interface string
}

// New creates a Controller for the named interface.
func New(iface string) *Controller {
	return &Controller{Interface: iface}
}

// Install implements bus.Controller.
func (c *Controller) Install(bus.Config) error { return bus.ErrUnsupported }

// Uninstall implements bus.Controller.
func (c *Controller) Uninstall() error { return bus.ErrInvalidState }

// Start implements bus.Controller.
func (c *Controller) Start() error { return bus.ErrInvalidState }

// Stop implements bus.Controller.
func (c *Controller) Stop() error { return bus.ErrInvalidState }

// Transmit implements bus.Controller.
func (c *Controller) Transmit(context.Context, can.Frame, time.Duration) error {
	return bus.ErrInvalidState
}

// Receive implements bus.Controller.
func (c *Controller) Receive(context.Context, time.Duration) (can.Frame, error) {
	return can.Frame{}, bus.ErrInvalidState
}
