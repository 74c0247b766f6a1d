package netbus

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/link"
)

type testHub struct {
	*Hub
	addr   string
	cancel context.CancelFunc
	done   chan error
}

func startHub(t *testing.T) *testHub {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	h := &testHub{Hub: NewHub(), addr: ln.Addr().String(), cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- h.Serve(ctx, ln) }()
	return h
}

func (h *testHub) stop(t *testing.T) {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("hub didn't stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func testConfig() bus.Config {
	cfg := bus.DefaultConfig()
	cfg.RecoveryDelay = time.Millisecond
	return cfg
}

func TestRelay(t *testing.T) {
	h := startHub(t)
	defer h.stop(t)

	a := bus.NewManager(NewController(TCPDialer(h.addr)))
	z := bus.NewManager(NewController(TCPDialer(h.addr)))
	require.NoError(t, a.Start(testConfig()))
	require.NoError(t, z.Start(testConfig()))
	defer a.Stop()
	defer z.Stop()
	waitFor(t, func() bool { return h.Peers() == 2 })

	ctx := context.Background()
	frame := can.Frame{ID: 0x1A0, Len: 4, Data: [8]byte{0, 0, 0xBC, 0x41}}
	require.NoError(t, a.Send(ctx, frame, time.Second))
	got, err := z.Receive(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, frame, got)

	// the sender doesn't hear itself
	_, err = a.Receive(ctx, 20*time.Millisecond)
	require.Equal(t, bus.ErrTimeout, err)
	require.Equal(t, uint64(1), h.Stats().Frames)
}

func TestLinkLossIsBusOff(t *testing.T) {
	h := startHub(t)
	var lock sync.Mutex
	addr := h.addr
	dial := func() (link.PacketReadWriter, error) {
		lock.Lock()
		defer lock.Unlock()
		return TCPDialer(addr)()
	}

	m := bus.NewManager(NewController(dial))
	require.NoError(t, m.Start(testConfig()))
	waitFor(t, func() bool { return h.Peers() == 1 })
	h.stop(t)

	ctx := context.Background()
	_, err := m.Receive(ctx, time.Second)
	require.Equal(t, bus.ErrBusOff, err)
	require.Equal(t, bus.Faulted, m.State())

	// hub is gone, recovery can't redial
	require.False(t, m.Recover())

	h2 := startHub(t)
	defer h2.stop(t)
	lock.Lock()
	addr = h2.addr
	lock.Unlock()
	require.True(t, m.Recover())
	waitFor(t, func() bool { return h2.Peers() == 1 })
	require.NoError(t, m.Send(ctx, can.Frame{ID: 1}, time.Second))
	require.NoError(t, m.Stop())
}

func TestLinkLossBeforeStart(t *testing.T) {
	h := startHub(t)
	c := NewController(TCPDialer(h.addr))
	require.NoError(t, c.Install(testConfig()))
	waitFor(t, func() bool { return h.Peers() == 1 })
	h.stop(t)

	// the read loop notices the loss at some point; from then on every
	// Start comes up bus-off
	waitFor(t, func() bool {
		require.NoError(t, c.Start())
		if c.port.Ready() == bus.ErrBusOff {
			return true
		}
		require.NoError(t, c.Stop())
		return false
	})
	err := c.Transmit(context.Background(), can.Frame{ID: 1}, time.Second)
	require.Equal(t, bus.ErrBusOff, err)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Uninstall())
}

var _ bus.Controller = (*Controller)(nil)
