// Package can provides the classical CAN frame shared by the bus drivers
// and the telemetry codec.
package can

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frame is a classical CAN 2.0 frame.
type Frame struct {
	ID       uint32 // 11-bit, or 29-bit when Extended
	Extended bool
	RTR      bool
	Len      uint8 // data length code, 0..8
	Data     [8]byte
}

// Limits of classical CAN.
const (
	MaxStdID   = 0x7FF
	MaxExtID   = 0x1FFFFFFF
	MaxDataLen = 8

	// WireSize is the size of the Linux can_frame layout.
	WireSize = 16
)

var (
	// ErrInvalidID indicates the identifier doesn't fit its addressing mode.
	ErrInvalidID = errors.New("can: invalid identifier")
	// ErrInvalidLen indicates a data length code above 8.
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Validate returns an error if the frame is not valid.
func (f Frame) Validate() error {
	if f.Len > MaxDataLen {
		return ErrInvalidLen
	}
	if f.Extended {
		if f.ID > MaxExtID {
			return ErrInvalidID
		}
	} else if f.ID > MaxStdID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the valid data bytes.
func (f Frame) Payload() []byte {
	n := f.Len
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return f.Data[:n]
}

// NewFrame builds a standard data frame.
func NewFrame(id uint32, data []byte) (Frame, error) {
	var f Frame
	if len(data) > MaxDataLen {
		return f, ErrInvalidLen
	}
	f.ID = id
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, f.Validate()
}

// String renders the frame as "1A0 [4] 00 00 BC 41".
func (f Frame) String() string {
	var sb strings.Builder
	if f.Extended {
		fmt.Fprintf(&sb, "%08X", f.ID)
	} else {
		fmt.Fprintf(&sb, "%03X", f.ID)
	}
	fmt.Fprintf(&sb, " [%d]", f.Len)
	if f.RTR {
		sb.WriteString(" RTR")
		return sb.String()
	}
	for _, b := range f.Payload() {
		fmt.Fprintf(&sb, " %02X", b)
	}
	return sb.String()
}

// can_id flags of the Linux can_frame layout.
const (
	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000
	effMask = 0x1FFFFFFF
	stdMask = 0x7FF
)

// MarshalBinary encodes the frame in the Linux SocketCAN can_frame layout
// (little-endian can_id, dlc, 3 pad bytes, 8 data bytes).
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	id := f.ID
	if f.Extended {
		id |= effFlag
	}
	if f.RTR {
		id |= rtrFlag
	}
	buf := make([]byte, WireSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	copy(buf[8:], f.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes a frame from the can_frame layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < WireSize {
		return fmt.Errorf("can: need %d bytes, got %d", WireSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	if id&errFlag != 0 {
		return &ErrorFrame{Class: id &^ (effFlag | rtrFlag | errFlag), Data: data[8:16]}
	}
	f.Extended = id&effFlag != 0
	f.RTR = id&rtrFlag != 0
	if f.Extended {
		f.ID = id & effMask
	} else {
		f.ID = id & stdMask
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}

// Error classes carried in the can_id of an error frame.
const (
	ErrClassTxTimeout  = 0x00000001
	ErrClassController = 0x00000004
	ErrClassBusOff     = 0x00000040
	ErrClassRestarted  = 0x00000100
)

// ErrorFrame is a controller error report received in place of a data frame.
type ErrorFrame struct {
	Class uint32
	Data  []byte
}

// Error implements error.
func (e *ErrorFrame) Error() string {
	return fmt.Sprintf("can: error frame class %08x", e.Class)
}

// BusOff indicates the controller reported the bus-off condition.
func (e *ErrorFrame) BusOff() bool {
	return e.Class&ErrClassBusOff != 0
}
