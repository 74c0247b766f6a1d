package netbus

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/framework"
	"github.com/robotalks/canlink/pkg/link"
	"github.com/robotalks/canlink/pkg/link/stream"
	wslink "github.com/robotalks/canlink/pkg/link/websocket"
)

// DialTimeout bounds connecting to the hub on Install.
const DialTimeout = 3 * time.Second

// DialFunc connects to a hub.
type DialFunc func() (link.PacketReadWriter, error)

// TCPDialer dials a hub at host:port.
func TCPDialer(addr string) DialFunc {
	return func() (link.PacketReadWriter, error) {
		conn, err := net.DialTimeout("tcp", addr, DialTimeout)
		if err != nil {
			return nil, err
		}
		return stream.New(conn), nil
	}
}

// WebSocketDialer dials a hub at ws://host:port/bus.
func WebSocketDialer(url string) DialFunc {
	return func() (link.PacketReadWriter, error) {
		return wslink.Dial(url)
	}
}

// Dialer picks the dialer by address: ws:// and wss:// URLs use
// websocket, anything else is a TCP address.
func Dialer(addr string) DialFunc {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return WebSocketDialer(addr)
	}
	return TCPDialer(addr)
}

// Controller implements bus.Controller as a hub peer. The connection is
// made on Install; losing it puts the controller into bus-off so the
// owner's recovery redials.
type Controller struct {
	dial DialFunc
	port bus.Port

	lock sync.Mutex
	conn *link.Conn
}

// NewController creates a Controller using dial to reach the hub.
func NewController(dial DialFunc) *Controller {
	return &Controller{dial: dial}
}

// Install implements bus.Controller.
func (c *Controller) Install(config bus.Config) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.conn != nil {
		return bus.ErrInvalidState
	}
	rw, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = link.NewConn(rw)
	c.port.Reset(config.RxQueueLen)
	go c.readLoop(c.conn)
	return nil
}

// Uninstall implements bus.Controller.
func (c *Controller) Uninstall() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.conn == nil || c.port.Started() {
		return bus.ErrInvalidState
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Start implements bus.Controller.
func (c *Controller) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.conn == nil {
		return bus.ErrInvalidState
	}
	return c.port.Start()
}

// Stop implements bus.Controller.
func (c *Controller) Stop() error {
	return c.port.Stop()
}

// Transmit implements bus.Controller.
func (c *Controller) Transmit(ctx context.Context, frame can.Frame, timeout time.Duration) error {
	if err := c.port.Ready(); err != nil {
		return err
	}
	c.lock.Lock()
	conn := c.conn
	c.lock.Unlock()
	if conn == nil {
		return bus.ErrInvalidState
	}

	errCh := make(chan error, 1)
	go func() { errCh <- conn.WriteFrame(frame) }()
	timer, release := framework.Timer(timeout)
	defer release()
	select {
	case err := <-errCh:
		if err != nil {
			c.linkLost(conn, err)
			return bus.ErrBusOff
		}
		return nil
	case <-timer:
		return bus.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements bus.Controller.
func (c *Controller) Receive(ctx context.Context, timeout time.Duration) (can.Frame, error) {
	return c.port.Receive(ctx, timeout)
}

func (c *Controller) readLoop(conn *link.Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			c.linkLost(conn, err)
			return
		}
		c.port.Deliver(frame)
	}
}

func (c *Controller) linkLost(conn *link.Conn, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.conn != conn {
		return
	}
	if c.port.SetBusOff() {
		glog.Warningf("netbus: link lost: %v", err)
	}
}
