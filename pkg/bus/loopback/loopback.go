// Package loopback is an in-memory CAN bus. Every frame transmitted by one
// controller is delivered to all other running controllers configured with
// the same bit rate. Faults can be injected for tests and simulation.
package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
)

// Bus is the shared medium.
type Bus struct {
	lock  sync.Mutex
	nodes []*Controller
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Controller attaches a new controller to the bus.
func (b *Bus) Controller() *Controller {
	c := &Controller{bus: b}
	b.lock.Lock()
	b.nodes = append(b.nodes, c)
	b.lock.Unlock()
	return c
}

func (b *Bus) deliver(from *Controller, bitrate bus.Bitrate, frame can.Frame) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, c := range b.nodes {
		if c != from && c.Bitrate() == bitrate {
			c.port.Deliver(frame)
		}
	}
}

// Controller implements bus.Controller on a loopback Bus.
type Controller struct {
	bus  *Bus
	port bus.Port

	lock      sync.Mutex
	installed bool
	stalled   bool
	bitrate   bus.Bitrate

	failInstall error
	failStart   error
	failStop    error
}

// Install implements bus.Controller.
func (c *Controller) Install(config bus.Config) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.failInstall; err != nil {
		c.failInstall = nil
		return err
	}
	if c.installed {
		return bus.ErrInvalidState
	}
	c.installed = true
	c.bitrate = config.Bitrate
	c.port.Reset(config.RxQueueLen)
	return nil
}

// Uninstall implements bus.Controller.
func (c *Controller) Uninstall() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.installed || c.port.Started() {
		return bus.ErrInvalidState
	}
	c.installed = false
	c.bitrate = 0
	return nil
}

// Start implements bus.Controller.
func (c *Controller) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.failStart; err != nil {
		c.failStart = nil
		return err
	}
	if !c.installed {
		return bus.ErrInvalidState
	}
	return c.port.Start()
}

// Stop implements bus.Controller.
func (c *Controller) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.failStop; err != nil {
		c.failStop = nil
		return err
	}
	return c.port.Stop()
}

// Bitrate returns the installed bit rate, 0 when not installed.
func (c *Controller) Bitrate() bus.Bitrate {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.bitrate
}

// Transmit implements bus.Controller.
func (c *Controller) Transmit(ctx context.Context, frame can.Frame, timeout time.Duration) error {
	if err := c.port.Ready(); err != nil {
		return err
	}
	c.lock.Lock()
	stalled, bitrate := c.stalled, c.bitrate
	c.lock.Unlock()
	if stalled {
		return c.port.Block(ctx, timeout)
	}
	c.bus.deliver(c, bitrate, frame)
	return nil
}

// Receive implements bus.Controller.
func (c *Controller) Receive(ctx context.Context, timeout time.Duration) (can.Frame, error) {
	return c.port.Receive(ctx, timeout)
}

// Dropped returns the number of inbound frames lost to rx queue overrun.
func (c *Controller) Dropped() uint64 {
	return c.port.Dropped()
}

// InjectBusOff puts an installed controller into bus-off. Blocked calls
// return bus.ErrBusOff. It clears on the next Install.
func (c *Controller) InjectBusOff() {
	c.port.SetBusOff()
}

// FailNextInstall makes the next Install return err.
func (c *Controller) FailNextInstall(err error) {
	c.lock.Lock()
	c.failInstall = err
	c.lock.Unlock()
}

// FailNextStart makes the next Start return err.
func (c *Controller) FailNextStart(err error) {
	c.lock.Lock()
	c.failStart = err
	c.lock.Unlock()
}

// FailNextStop makes the next Stop return err and leave the controller
// running.
func (c *Controller) FailNextStop(err error) {
	c.lock.Lock()
	c.failStop = err
	c.lock.Unlock()
}

// StallTransmit makes Transmit block until its timeout when stalled is true,
// like a bus without any acknowledging node.
func (c *Controller) StallTransmit(stalled bool) {
	c.lock.Lock()
	c.stalled = stalled
	c.lock.Unlock()
}
