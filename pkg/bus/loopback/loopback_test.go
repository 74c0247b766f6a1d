package loopback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
)

func startedPair(t *testing.T) (*Controller, *Controller) {
	b := NewBus()
	a, z := b.Controller(), b.Controller()
	for _, c := range []*Controller{a, z} {
		require.NoError(t, c.Install(bus.DefaultConfig()))
		require.NoError(t, c.Start())
	}
	return a, z
}

func TestDeliverToPeers(t *testing.T) {
	a, z := startedPair(t)
	frame, err := can.NewFrame(0x1A0, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, a.Transmit(context.Background(), frame, time.Second))

	got, err := z.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, frame, got)

	_, err = a.Receive(context.Background(), 0)
	require.Equal(t, bus.ErrTimeout, err)
}

func TestBitrateMismatch(t *testing.T) {
	b := NewBus()
	a, z := b.Controller(), b.Controller()
	cfg := bus.DefaultConfig()
	require.NoError(t, a.Install(cfg))
	cfg.Bitrate = bus.Bitrate250K
	require.NoError(t, z.Install(cfg))
	require.NoError(t, a.Start())
	require.NoError(t, z.Start())

	require.NoError(t, a.Transmit(context.Background(), can.Frame{ID: 1}, 0))
	_, err := z.Receive(context.Background(), 10*time.Millisecond)
	require.Equal(t, bus.ErrTimeout, err)
}

func TestRxOverrun(t *testing.T) {
	a, z := startedPair(t)
	for i := 0; i < bus.DefaultConfig().RxQueueLen+2; i++ {
		require.NoError(t, a.Transmit(context.Background(), can.Frame{ID: uint32(i)}, 0))
	}
	require.Equal(t, uint64(2), z.Dropped())
	got, err := z.Receive(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0), got.ID)
}

func TestLifecycleOrder(t *testing.T) {
	c := NewBus().Controller()
	require.Equal(t, bus.ErrInvalidState, c.Start())
	require.Equal(t, bus.ErrInvalidState, c.Uninstall())
	require.NoError(t, c.Install(bus.DefaultConfig()))
	require.Equal(t, bus.ErrInvalidState, c.Install(bus.DefaultConfig()))
	require.NoError(t, c.Start())
	require.Equal(t, bus.ErrInvalidState, c.Uninstall())
	require.NoError(t, c.Stop())
	require.NoError(t, c.Uninstall())

	require.Equal(t, bus.ErrInvalidState, c.Transmit(context.Background(), can.Frame{}, 0))
	_, err := c.Receive(context.Background(), 0)
	require.Equal(t, bus.ErrInvalidState, err)
}

func TestStopWakesReceive(t *testing.T) {
	_, z := startedPair(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := z.Receive(context.Background(), -1)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, z.Stop())
	select {
	case err := <-errCh:
		require.Equal(t, bus.ErrInvalidState, err)
	case <-time.After(time.Second):
		t.Fatal("receive not woken by stop")
	}
}

func TestInjectBusOff(t *testing.T) {
	a, z := startedPair(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := z.Receive(context.Background(), -1)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	z.InjectBusOff()
	select {
	case err := <-errCh:
		require.Equal(t, bus.ErrBusOff, err)
	case <-time.After(time.Second):
		t.Fatal("receive not woken by bus-off")
	}
	require.Equal(t, bus.ErrBusOff, z.Transmit(context.Background(), can.Frame{}, 0))

	// frames are not accepted while bus-off
	require.NoError(t, a.Transmit(context.Background(), can.Frame{ID: 7}, 0))

	require.NoError(t, z.Stop())
	require.NoError(t, z.Uninstall())
	require.NoError(t, z.Install(bus.DefaultConfig()))
	require.NoError(t, z.Start())
	require.NoError(t, z.Transmit(context.Background(), can.Frame{}, 0))
	_, err := z.Receive(context.Background(), 0)
	require.Equal(t, bus.ErrTimeout, err)
}

func TestStallTransmit(t *testing.T) {
	a, _ := startedPair(t)
	a.StallTransmit(true)
	start := time.Now()
	require.Equal(t, bus.ErrTimeout, a.Transmit(context.Background(), can.Frame{}, 20*time.Millisecond))
	require.True(t, time.Since(start) >= 20*time.Millisecond)
	a.StallTransmit(false)
	require.NoError(t, a.Transmit(context.Background(), can.Frame{}, 0))
}

func TestFailNext(t *testing.T) {
	c := NewBus().Controller()
	boom := errors.New("boom")
	c.FailNextInstall(boom)
	require.Equal(t, boom, c.Install(bus.DefaultConfig()))
	require.NoError(t, c.Install(bus.DefaultConfig()))
	c.FailNextStart(boom)
	require.Equal(t, boom, c.Start())
	require.NoError(t, c.Start())
	c.FailNextStop(boom)
	require.Equal(t, boom, c.Stop())
	require.NoError(t, c.Stop())
}

var _ bus.Controller = (*Controller)(nil)
