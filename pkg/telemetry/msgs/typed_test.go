package msgs

import (
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"
)

func TestTypedEnvelope(t *testing.T) {
	data, err := Encode(&TemperatureSample{Node: "n1", Channel: 0x1A0, Celsius: 23.5, TimestampMs: 1000})
	require.NoError(t, err)

	typed, err := DecodeTyped(data)
	require.NoError(t, err)
	require.Equal(t, TemperatureSampleTypeID, typed.TypeId)
	require.True(t, typed.IsEvent())

	msg, err := typed.Decode()
	require.NoError(t, err)
	sample, ok := msg.(*TemperatureSample)
	require.True(t, ok)
	require.Equal(t, "n1", sample.Node)
	require.Equal(t, float32(23.5), sample.Celsius)
}

func TestUnknownType(t *testing.T) {
	data, err := proto.Marshal(&Typed{TypeId: GroupCustom | 7})
	require.NoError(t, err)
	typed, err := DecodeTyped(data)
	require.NoError(t, err)
	_, err = typed.Decode()
	require.Error(t, err)
	unknown, ok := err.(*ErrUnknownType)
	require.True(t, ok)
	require.Equal(t, GroupCustom|7, unknown.TypeID)
}
