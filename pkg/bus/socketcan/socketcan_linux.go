// +build linux

package socketcan

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
)

const (
	afCAN           = 29
	canRaw          = 1
	solCANRaw       = 101
	canRawErrFilter = 2
)

type sockaddrCAN struct {
	Family  uint16
	_       uint16
	Ifindex int32
	Addr    [8]byte
}

// Controller implements bus.Controller on a SocketCAN interface.
// Install opens and binds the raw socket, Uninstall closes it.
type Controller struct {
	Interface string

	port bus.Port
	lock sync.Mutex
	file *os.File
}

// New creates a Controller for the named interface.
func New(iface string) *Controller {
	return &Controller{Interface: iface}
}

// Install implements bus.Controller.
func (c *Controller) Install(config bus.Config) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.file != nil {
		return bus.ErrInvalidState
	}
	file, err := open(c.Interface)
	if err != nil {
		return err
	}
	c.file = file
	c.port.Reset(config.RxQueueLen)
	go c.readLoop(file)
	glog.Infof("socketcan: %s opened, expecting bitrate %s on the device", c.Interface, config.Bitrate)
	return nil
}

func open(iface string) (*os.File, error) {
	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}
	fd, err := syscall.Socket(afCAN, syscall.SOCK_RAW, canRaw)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	sa := sockaddrCAN{Family: afCAN, Ifindex: int32(netIf.Index)}
	if _, _, e := syscall.Syscall(syscall.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa)); e != 0 {
		syscall.Close(fd)
		return nil, os.NewSyscallError("bind", e)
	}
	errMask := can.ErrClassTxTimeout | can.ErrClassController | can.ErrClassBusOff | can.ErrClassRestarted
	if err := syscall.SetsockoptInt(fd, solCANRaw, canRawErrFilter, errMask); err != nil {
		syscall.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), iface), nil
}

// Uninstall implements bus.Controller.
func (c *Controller) Uninstall() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.file == nil || c.port.Started() {
		return bus.ErrInvalidState
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// Start implements bus.Controller.
func (c *Controller) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.file == nil {
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
	file := c.file
	c.lock.Unlock()
	if file == nil {
		return bus.ErrInvalidState
	}
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}

	var deadline time.Time
	switch {
	case timeout > 0:
		deadline = time.Now().Add(timeout)
	case timeout == 0:
		// an expired deadline would fail before the first attempt
		deadline = time.Now().Add(time.Millisecond)
	}
	if err := file.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				file.SetWriteDeadline(time.Now())
			case <-stop:
			}
		}()
	}

	_, err = file.Write(buf)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case os.IsTimeout(err), errors.Is(err, syscall.ENOBUFS):
		return bus.ErrTimeout
	case errors.Is(err, syscall.ENETDOWN):
		c.port.SetBusOff()
		return bus.ErrBusOff
	case errors.Is(err, os.ErrClosed):
		return bus.ErrInvalidState
	default:
		return err
	}
}

// Receive implements bus.Controller.
func (c *Controller) Receive(ctx context.Context, timeout time.Duration) (can.Frame, error) {
	return c.port.Receive(ctx, timeout)
}

func (c *Controller) readLoop(file *os.File) {
	buf := make([]byte, can.WireSize)
	for {
		n, err := file.Read(buf)
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				glog.Errorf("socketcan: %s read: %v", c.Interface, err)
				c.port.SetBusOff()
			}
			return
		}
		if n != can.WireSize {
			continue
		}
		var frame can.Frame
		err = frame.UnmarshalBinary(buf)
		var errFrame *can.ErrorFrame
		switch {
		case err == nil:
			c.port.Deliver(frame)
		case errors.As(err, &errFrame):
			glog.Warningf("socketcan: %s: %v", c.Interface, errFrame)
			if errFrame.BusOff() {
				c.port.SetBusOff()
			}
		default:
			glog.V(2).Infof("socketcan: %s: bad frame: %v", c.Interface, err)
		}
	}
}
