// Package telemetry moves scalar samples from a sensor onto the CAN bus and
// back: Sampler → Mailbox → Transmitter → bus → Receiver → Sink.
package telemetry

import (
	"encoding/binary"
	"math"

	"github.com/robotalks/canlink/pkg/can"
)

// Sample is a single reading. Order is arrival order.
type Sample float32

// Channel identifiers used in production. They must not collide with other
// traffic sharing the bus.
const (
	TemperatureChannel    uint32 = 0x1A0
	AuxTemperatureChannel uint32 = 0x515
)

// SampleLen is the data length code of a sample frame.
const SampleLen = 4

// Encode packs s into a standard frame with identifier id.
// Bytes 0..4 hold the IEEE-754 bits in little-endian order, bytes 4..8 are zero.
func Encode(s Sample, id uint32) can.Frame {
	f := can.Frame{ID: id, Len: SampleLen}
	binary.LittleEndian.PutUint32(f.Data[:SampleLen], math.Float32bits(float32(s)))
	return f
}

// Decode extracts the sample if f is a sample frame on channel expected.
// Any other frame yields false; it belongs to other traffic and is not an error.
func Decode(f can.Frame, expected uint32) (Sample, bool) {
	if f.ID != expected || f.Len != SampleLen || f.Extended || f.RTR {
		return 0, false
	}
	return Sample(math.Float32frombits(binary.LittleEndian.Uint32(f.Data[:SampleLen]))), true
}
