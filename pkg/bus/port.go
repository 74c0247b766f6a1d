package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/framework"
)

// Port is the software half of a controller shared by the drivers: the
// started and bus-off flags and the inbound queue. Blocked waits are
// released by Stop and by SetBusOff.
type Port struct {
	dropped uint64

	lock    sync.Mutex
	started bool
	busOff  bool
	rx      chan can.Frame
	wake    chan struct{}
}

// Reset prepares the port on install: a fresh queue of rxQueueLen frames
// and bus-off cleared.
func (p *Port) Reset(rxQueueLen int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.busOff = false
	p.rx = make(chan can.Frame, rxQueueLen)
}

// Start opens the port.
func (p *Port) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.started || p.rx == nil {
		return ErrInvalidState
	}
	p.started = true
	p.wake = make(chan struct{})
	return nil
}

// Stop closes the port and releases blocked waits.
func (p *Port) Stop() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.started {
		return ErrInvalidState
	}
	p.started = false
	close(p.wake)
	return nil
}

// Started tells whether the port is started.
func (p *Port) Started() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.started
}

// Ready returns nil when the port is started and not bus-off.
func (p *Port) Ready() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.readyLocked()
}

func (p *Port) readyLocked() error {
	if !p.started {
		return ErrInvalidState
	}
	if p.busOff {
		return ErrBusOff
	}
	return nil
}

// SetBusOff enters bus-off until the next Reset. A port that is installed
// but not started keeps the condition, and the following Start comes up
// bus-off. It returns false if the port was never reset or already bus-off.
func (p *Port) SetBusOff() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.rx == nil || p.busOff {
		return false
	}
	p.busOff = true
	if p.started {
		close(p.wake)
		p.wake = make(chan struct{})
	}
	return true
}

// Deliver queues an inbound frame. Frames are discarded while the port is
// not ready, and counted as dropped when the queue is full.
func (p *Port) Deliver(frame can.Frame) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.readyLocked() != nil {
		return false
	}
	select {
	case p.rx <- frame:
		return true
	default:
		atomic.AddUint64(&p.dropped, 1)
		return false
	}
}

// Dropped returns the number of frames lost to queue overrun.
func (p *Port) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// Receive waits up to timeout for an inbound frame.
func (p *Port) Receive(ctx context.Context, timeout time.Duration) (can.Frame, error) {
	p.lock.Lock()
	if err := p.readyLocked(); err != nil {
		p.lock.Unlock()
		return can.Frame{}, err
	}
	rx, wake := p.rx, p.wake
	p.lock.Unlock()

	select {
	case frame := <-rx:
		return frame, nil
	default:
	}
	if timeout == 0 {
		return can.Frame{}, ErrTimeout
	}
	timer, release := framework.Timer(timeout)
	defer release()
	select {
	case frame := <-rx:
		return frame, nil
	case <-wake:
		return can.Frame{}, p.wakeReason()
	case <-timer:
		return can.Frame{}, ErrTimeout
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	}
}

// Block waits until timeout like a transmission nobody acknowledges.
// It returns ErrTimeout, or the reason the port stopped being ready.
func (p *Port) Block(ctx context.Context, timeout time.Duration) error {
	p.lock.Lock()
	if err := p.readyLocked(); err != nil {
		p.lock.Unlock()
		return err
	}
	wake := p.wake
	p.lock.Unlock()

	timer, release := framework.Timer(timeout)
	defer release()
	select {
	case <-wake:
		return p.wakeReason()
	case <-timer:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Port) wakeReason() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if err := p.readyLocked(); err != nil {
		return err
	}
	return ErrInvalidState
}
