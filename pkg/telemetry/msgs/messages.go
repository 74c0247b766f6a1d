package msgs

import (
	"github.com/golang/protobuf/proto"
)

// TypeID Groups
const (
	GroupTelemetry uint32 = 0x00030000
	GroupCustom    uint32 = 0x7f000000 // base group id for custom messages.
)

// TypeIDs
const (
	TemperatureSampleTypeID uint32 = TypeIDKindEvent | GroupTelemetry | 0x0001
	BusStatusTypeID         uint32 = TypeIDKindEvent | GroupTelemetry | 0x0002
)

// The structs below and Typed follow msgs.proto field for field.

// TemperatureSample is a reading received from the bus.
type TemperatureSample struct {
	Node        string  `protobuf:"bytes,1,opt,name=node,proto3" json:"node,omitempty"`
	Channel     uint32  `protobuf:"varint,2,opt,name=channel,proto3" json:"channel,omitempty"`
	Celsius     float32 `protobuf:"fixed32,3,opt,name=celsius,proto3" json:"celsius,omitempty"`
	TimestampMs int64   `protobuf:"varint,4,opt,name=timestamp_ms,proto3" json:"timestamp_ms,omitempty"`
}

// NewMessage implements Message.
func (m *TemperatureSample) NewMessage() Message { return &TemperatureSample{} }

// TypeID implements Message.
func (m *TemperatureSample) TypeID() uint32 { return TemperatureSampleTypeID }

// ProtoMessage implements proto.Message.
func (m *TemperatureSample) ProtoMessage() {}

// Reset implements proto.Message.
func (m *TemperatureSample) Reset() { *m = TemperatureSample{} }

// String implements proto.Message.
func (m *TemperatureSample) String() string { return proto.CompactTextString(m) }

// BusStatus is emitted when the bus state changes.
type BusStatus struct {
	Node             string `protobuf:"bytes,1,opt,name=node,proto3" json:"node,omitempty"`
	State            string `protobuf:"bytes,2,opt,name=state,proto3" json:"state,omitempty"`
	TxFrames         uint64 `protobuf:"varint,3,opt,name=tx_frames,proto3" json:"tx_frames,omitempty"`
	TxErrors         uint64 `protobuf:"varint,4,opt,name=tx_errors,proto3" json:"tx_errors,omitempty"`
	RxFrames         uint64 `protobuf:"varint,5,opt,name=rx_frames,proto3" json:"rx_frames,omitempty"`
	RxErrors         uint64 `protobuf:"varint,6,opt,name=rx_errors,proto3" json:"rx_errors,omitempty"`
	BusOffs          uint64 `protobuf:"varint,7,opt,name=bus_offs,proto3" json:"bus_offs,omitempty"`
	Recoveries       uint64 `protobuf:"varint,8,opt,name=recoveries,proto3" json:"recoveries,omitempty"`
	FailedRecoveries uint64 `protobuf:"varint,9,opt,name=failed_recoveries,proto3" json:"failed_recoveries,omitempty"`
}

// NewMessage implements Message.
func (m *BusStatus) NewMessage() Message { return &BusStatus{} }

// TypeID implements Message.
func (m *BusStatus) TypeID() uint32 { return BusStatusTypeID }

// ProtoMessage implements proto.Message.
func (m *BusStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *BusStatus) Reset() { *m = BusStatus{} }

// String implements proto.Message.
func (m *BusStatus) String() string { return proto.CompactTextString(m) }
