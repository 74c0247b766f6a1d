package link

import (
	"fmt"
	"io"
	"sync"

	"github.com/robotalks/canlink/pkg/can"
)

// Conn exchanges CAN frames over a PacketReadWriter, one frame per packet
// in the can_frame layout. WriteFrame is safe for concurrent use; reads
// must come from a single goroutine.
type Conn struct {
	ReadWriter PacketReadWriter

	sendLock sync.Mutex
}

// NewConn creates a Conn with given PacketReadWriter.
func NewConn(rw PacketReadWriter) *Conn {
	return &Conn{ReadWriter: rw}
}

// WriteFrame sends one frame.
func (c *Conn) WriteFrame(frame can.Frame) error {
	pkt, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	return c.WritePacket(pkt)
}

// WritePacket sends a raw packet.
func (c *Conn) WritePacket(pkt []byte) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	return c.ReadWriter.WritePacket(pkt)
}

// ReadFrame reads the next frame. Packets of the wrong size are rejected.
func (c *Conn) ReadFrame() (frame can.Frame, err error) {
	pkt, err := c.ReadWriter.ReadPacket()
	if err != nil {
		return frame, err
	}
	if len(pkt) != can.WireSize {
		return frame, fmt.Errorf("link: bad frame packet size %d", len(pkt))
	}
	err = frame.UnmarshalBinary(pkt)
	return frame, err
}

// Close implements io.Closer.
func (c *Conn) Close() error {
	if closer, ok := c.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
