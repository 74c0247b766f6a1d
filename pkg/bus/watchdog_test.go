package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/bus/loopback"
)

func TestWatchdogRecovers(t *testing.T) {
	ctl := loopback.NewBus().Controller()
	m := bus.NewManager(ctl)
	require.NoError(t, m.Start(testConfig()))
	ctl.InjectBusOff()
	_, err := m.Receive(context.Background(), 0)
	require.Equal(t, bus.ErrBusOff, err)
	require.Equal(t, bus.Faulted, m.State())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- (&bus.Watchdog{Bus: m, Interval: 5 * time.Millisecond}).Run(ctx) }()
	deadline := time.Now().Add(time.Second)
	for m.State() != bus.Running {
		require.True(t, time.Now().Before(deadline), "not recovered")
		time.Sleep(time.Millisecond)
	}
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
	require.Equal(t, uint64(1), m.Stats().Recoveries)
}
