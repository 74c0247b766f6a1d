package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/framework"
)

// DefaultSendTimeout bounds a single frame transmission.
const DefaultSendTimeout = time.Second

// FrameSender is the part of bus.Manager used by Transmitter.
type FrameSender interface {
	Send(ctx context.Context, frame can.Frame, timeout time.Duration) error
	Recover() bool
}

// TxState is the state of Transmitter.
type TxState int32

// Transmitter states.
const (
	TxIdle TxState = iota
	TxSending
	TxRecovering
)

func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxSending:
		return "sending"
	case TxRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// TransmitterStats are cumulative Transmitter counters.
type TransmitterStats struct {
	Sent             uint64
	Dropped          uint64
	Recoveries       uint64
	FailedRecoveries uint64
}

// Transmitter takes samples from In and sends each as one frame.
// It is the only task recovering the bus, and only after a failed send.
// A sample is never retried.
type Transmitter struct {
	stats TransmitterStats
	state int32

	In          SampleReceiver
	Bus         FrameSender
	Channel     uint32
	SendTimeout time.Duration
}

// NewTransmitter creates a Transmitter with the default send timeout.
func NewTransmitter(in SampleReceiver, sender FrameSender, channel uint32) *Transmitter {
	return &Transmitter{
		In:          in,
		Bus:         sender,
		Channel:     channel,
		SendTimeout: DefaultSendTimeout,
	}
}

// State returns the current state.
func (t *Transmitter) State() TxState {
	return TxState(atomic.LoadInt32(&t.state))
}

// Stats returns a snapshot of the counters.
func (t *Transmitter) Stats() TransmitterStats {
	return TransmitterStats{
		Sent:             atomic.LoadUint64(&t.stats.Sent),
		Dropped:          atomic.LoadUint64(&t.stats.Dropped),
		Recoveries:       atomic.LoadUint64(&t.stats.Recoveries),
		FailedRecoveries: atomic.LoadUint64(&t.stats.FailedRecoveries),
	}
}

func (t *Transmitter) setState(s TxState) {
	atomic.StoreInt32(&t.state, int32(s))
}

// Run implements framework.Runnable.
func (t *Transmitter) Run(ctx context.Context) error {
	for {
		t.setState(TxIdle)
		s, err := t.In.Receive(ctx, framework.Forever)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			glog.Warningf("transmitter: mailbox: %v", err)
			continue
		}
		t.Deliver(ctx, s)
	}
}

// Deliver encodes and sends one sample and returns the send result.
// On a bus fault it runs one recovery attempt before returning; the
// sample is dropped either way.
func (t *Transmitter) Deliver(ctx context.Context, s Sample) error {
	frame := Encode(s, t.Channel)
	t.setState(TxSending)
	defer t.setState(TxIdle)
	err := t.Bus.Send(ctx, frame, t.SendTimeout)
	switch {
	case err == nil:
		atomic.AddUint64(&t.stats.Sent, 1)
		glog.V(2).Infof("transmitter: sent %s", frame)
		return nil
	case ctx.Err() != nil:
		return err
	}

	atomic.AddUint64(&t.stats.Dropped, 1)
	if !bus.IsFault(err) {
		glog.Warningf("transmitter: dropped %.2f: %v", s, err)
		return err
	}

	glog.Warningf("transmitter: bus fault, dropped %.2f: %v", s, err)
	t.setState(TxRecovering)
	if t.Bus.Recover() {
		atomic.AddUint64(&t.stats.Recoveries, 1)
		glog.Info("transmitter: bus recovered")
	} else {
		atomic.AddUint64(&t.stats.FailedRecoveries, 1)
		glog.Error("transmitter: bus recovery failed, bus stays down until next send")
	}
	return err
}
