package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robotalks/canlink/pkg/framework"
)

// DefaultMailboxCapacity is the number of queued samples.
const DefaultMailboxCapacity = 10

var (
	// ErrMailboxFull is returned when Send times out. The sample was not queued.
	ErrMailboxFull = errors.New("mailbox full")
	// ErrMailboxEmpty is returned when Receive times out.
	ErrMailboxEmpty = errors.New("mailbox empty")
)

// SampleSender is the producer end of a Mailbox.
type SampleSender interface {
	Send(ctx context.Context, s Sample, timeout time.Duration) error
}

// SampleReceiver is the consumer end of a Mailbox.
type SampleReceiver interface {
	Receive(ctx context.Context, timeout time.Duration) (Sample, error)
}

// Mailbox is a bounded FIFO between exactly one producer and one consumer.
type Mailbox struct {
	ch chan Sample
}

// NewMailbox creates a Mailbox holding up to capacity samples.
func NewMailbox(capacity int) (*Mailbox, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid mailbox capacity %d", capacity)
	}
	return &Mailbox{ch: make(chan Sample, capacity)}, nil
}

// Cap returns the capacity.
func (m *Mailbox) Cap() int {
	return cap(m.ch)
}

// Len returns the number of queued samples.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// Sender returns the producer end.
func (m *Mailbox) Sender() SampleSender {
	return m
}

// Receiver returns the consumer end.
func (m *Mailbox) Receiver() SampleReceiver {
	return m
}

// Send queues s, waiting up to timeout for a free slot.
// A zero timeout never blocks, a negative one waits forever.
func (m *Mailbox) Send(ctx context.Context, s Sample, timeout time.Duration) error {
	select {
	case m.ch <- s:
		return nil
	default:
	}
	if timeout == 0 {
		return ErrMailboxFull
	}
	timer, release := framework.Timer(timeout)
	defer release()
	select {
	case m.ch <- s:
		return nil
	case <-timer:
		return ErrMailboxFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive takes the oldest sample, waiting up to timeout.
func (m *Mailbox) Receive(ctx context.Context, timeout time.Duration) (Sample, error) {
	select {
	case s := <-m.ch:
		return s, nil
	default:
	}
	if timeout == 0 {
		return 0, ErrMailboxEmpty
	}
	timer, release := framework.Timer(timeout)
	defer release()
	select {
	case s := <-m.ch:
		return s, nil
	case <-timer:
		return 0, ErrMailboxEmpty
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
