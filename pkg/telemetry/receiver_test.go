package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/framework"
)

type rxResult struct {
	frame can.Frame
	err   error
}

type chanReceiver chan rxResult

func (c chanReceiver) Receive(ctx context.Context, timeout time.Duration) (can.Frame, error) {
	timer, release := framework.Timer(timeout)
	defer release()
	select {
	case r := <-c:
		return r.frame, r.err
	case <-timer:
		return can.Frame{}, bus.ErrTimeout
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	}
}

func startReceiver(t *testing.T, r *Receiver) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	return cancel, errCh
}

func stopReceiver(t *testing.T, cancel context.CancelFunc, errCh <-chan error) {
	cancel()
	select {
	case err := <-errCh:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("receiver didn't stop")
	}
}

func TestReceiverIgnoresOtherChannels(t *testing.T) {
	frames := make(chanReceiver)
	readings := make(chan Reading, 4)
	sink := SinkFunc(func(_ context.Context, r Reading) error {
		readings <- r
		return nil
	})
	r := NewReceiver(frames, TemperatureChannel, sink)
	r.ReceiveTimeout = 5 * time.Millisecond
	cancel, errCh := startReceiver(t, r)

	frames <- rxResult{frame: Encode(99, 0x999)}
	frames <- rxResult{frame: can.Frame{ID: TemperatureChannel, Len: 2}}
	frames <- rxResult{frame: Encode(21, TemperatureChannel)}

	select {
	case reading := <-readings:
		require.Equal(t, TemperatureChannel, reading.Channel)
		require.Equal(t, float32(21), reading.Value)
		require.False(t, reading.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no reading")
	}
	stopReceiver(t, cancel, errCh)
	require.Empty(t, readings)
	require.Equal(t, ReceiverStats{Frames: 3, Matched: 1, Ignored: 2}, r.Stats())
}

func TestReceiverFaultBackoff(t *testing.T) {
	frames := make(chanReceiver, 4)
	r := NewReceiver(frames, TemperatureChannel, nil)
	r.FaultBackoff = 50 * time.Millisecond
	frames <- rxResult{err: bus.ErrBusOff}
	frames <- rxResult{err: errors.New("glitch")}
	frames <- rxResult{frame: Encode(1, TemperatureChannel)}

	start := time.Now()
	cancel, errCh := startReceiver(t, r)
	waitFor(t, func() bool { return r.Stats().Matched == 1 })
	require.True(t, time.Since(start) >= 50*time.Millisecond)
	stopReceiver(t, cancel, errCh)
	require.Equal(t, uint64(1), r.Stats().Faults)
	require.Equal(t, uint64(1), r.Stats().Errors)
}

func TestReceiverBackoffCanceled(t *testing.T) {
	frames := make(chanReceiver, 1)
	r := NewReceiver(frames, TemperatureChannel, nil)
	r.FaultBackoff = time.Hour
	frames <- rxResult{err: bus.ErrInvalidState}
	cancel, errCh := startReceiver(t, r)
	waitFor(t, func() bool { return r.Stats().Faults == 1 })
	stopReceiver(t, cancel, errCh)
}

func TestSinks(t *testing.T) {
	var got []float32
	boom := errors.New("boom")
	sinks := Sinks{
		LogSink{},
		SinkFunc(func(_ context.Context, r Reading) error {
			got = append(got, r.Value)
			return nil
		}),
		SinkFunc(func(context.Context, Reading) error { return boom }),
	}
	err := sinks.Consume(context.Background(), Reading{Channel: TemperatureChannel, Value: 3})
	require.True(t, errors.Is(err, boom))
	require.Equal(t, []float32{3}, got)
}

type failingReceiver struct {
	calls uint64
}

func (f *failingReceiver) Receive(context.Context, time.Duration) (can.Frame, error) {
	atomic.AddUint64(&f.calls, 1)
	return can.Frame{}, errors.New("driver glitch")
}

func TestReceiverErrorBackoff(t *testing.T) {
	recv := &failingReceiver{}
	r := NewReceiver(recv, TemperatureChannel, nil)
	r.ErrorBackoff = 20 * time.Millisecond
	cancel, errCh := startReceiver(t, r)
	time.Sleep(100 * time.Millisecond)
	stopReceiver(t, cancel, errCh)

	calls := atomic.LoadUint64(&recv.calls)
	require.True(t, calls >= 1)
	require.True(t, calls <= 10, "receive retried %d times", calls)
	// the call in flight at cancellation is not counted
	require.InDelta(t, calls, r.Stats().Errors, 1)
}
