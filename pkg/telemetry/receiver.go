package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/framework"
)

// Receiver defaults.
const (
	DefaultReceiveTimeout = time.Second
	DefaultFaultBackoff   = time.Second
	DefaultErrorBackoff   = 100 * time.Millisecond
)

// FrameReceiver is the part of bus.Manager used by Receiver.
type FrameReceiver interface {
	Receive(ctx context.Context, timeout time.Duration) (can.Frame, error)
}

// ReceiverStats are cumulative Receiver counters.
type ReceiverStats struct {
	Frames  uint64
	Matched uint64
	Ignored uint64
	Faults  uint64
	Errors  uint64
}

// Receiver decodes inbound frames of one channel and hands the values to
// Sink. Frames of other channels are ignored. It never changes the bus
// lifecycle; on a fault it backs off and keeps listening.
type Receiver struct {
	stats ReceiverStats

	Bus            FrameReceiver
	Channel        uint32
	Sink           Sink
	ReceiveTimeout time.Duration
	FaultBackoff   time.Duration
	ErrorBackoff   time.Duration
}

// NewReceiver creates a Receiver with default timeouts.
func NewReceiver(recv FrameReceiver, channel uint32, sink Sink) *Receiver {
	return &Receiver{
		Bus:            recv,
		Channel:        channel,
		Sink:           sink,
		ReceiveTimeout: DefaultReceiveTimeout,
		FaultBackoff:   DefaultFaultBackoff,
		ErrorBackoff:   DefaultErrorBackoff,
	}
}

// Stats returns a snapshot of the counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Frames:  atomic.LoadUint64(&r.stats.Frames),
		Matched: atomic.LoadUint64(&r.stats.Matched),
		Ignored: atomic.LoadUint64(&r.stats.Ignored),
		Faults:  atomic.LoadUint64(&r.stats.Faults),
		Errors:  atomic.LoadUint64(&r.stats.Errors),
	}
}

// Run implements framework.Runnable.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		frame, err := r.Bus.Receive(ctx, r.ReceiveTimeout)
		switch {
		case err == nil:
			r.Handle(ctx, frame)
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, bus.ErrTimeout):
		case bus.IsFault(err):
			atomic.AddUint64(&r.stats.Faults, 1)
			glog.Warningf("receiver: bus fault: %v", err)
			if err := framework.Sleep(ctx, r.FaultBackoff); err != nil {
				return err
			}
		default:
			atomic.AddUint64(&r.stats.Errors, 1)
			glog.Errorf("receiver: %v", err)
			if err := framework.Sleep(ctx, r.ErrorBackoff); err != nil {
				return err
			}
		}
	}
}

// Handle decodes one frame and reports whether it carried a sample of the
// configured channel.
func (r *Receiver) Handle(ctx context.Context, frame can.Frame) bool {
	atomic.AddUint64(&r.stats.Frames, 1)
	glog.V(2).Infof("receiver: frame %s", frame)
	value, ok := Decode(frame, r.Channel)
	if !ok {
		atomic.AddUint64(&r.stats.Ignored, 1)
		return false
	}
	atomic.AddUint64(&r.stats.Matched, 1)
	if r.Sink != nil {
		reading := Reading{Channel: r.Channel, Value: float32(value), At: time.Now()}
		if err := r.Sink.Consume(ctx, reading); err != nil {
			glog.Warningf("receiver: sink: %v", err)
		}
	}
	return true
}
