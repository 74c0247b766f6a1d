package telemetry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlink/pkg/can"
)

func TestEncodeLayout(t *testing.T) {
	f := Encode(23.5, TemperatureChannel)
	require.Equal(t, uint32(0x1A0), f.ID)
	require.Equal(t, uint8(4), f.Len)
	require.False(t, f.Extended)
	require.Equal(t, [8]byte{0x00, 0x00, 0xBC, 0x41, 0, 0, 0, 0}, f.Data)
	require.NoError(t, f.Validate())
	require.Equal(t, "1A0 [4] 00 00 BC 41", f.String())
}

func TestDecodeRoundTrip(t *testing.T) {
	values := []float32{
		0, -21.25, 23.5, 125,
		math.MaxFloat32, math.SmallestNonzeroFloat32,
		float32(math.Inf(1)), float32(math.Inf(-1)),
		float32(math.Copysign(0, -1)),
		float32(math.NaN()),
	}
	for _, v := range values {
		for _, id := range []uint32{TemperatureChannel, AuxTemperatureChannel} {
			s, ok := Decode(Encode(Sample(v), id), id)
			require.True(t, ok)
			require.Equal(t, math.Float32bits(v), math.Float32bits(float32(s)))

			_, ok = Decode(Encode(Sample(v), id), id^1)
			require.False(t, ok)
		}
	}
}

func TestDecodeRejectsOtherFrames(t *testing.T) {
	good := Encode(20, TemperatureChannel)
	cases := map[string]can.Frame{
		"other channel": Encode(20, 0x999),
		"empty":         {ID: TemperatureChannel},
		"short":         {ID: TemperatureChannel, Len: 3, Data: good.Data},
		"long":          {ID: TemperatureChannel, Len: 8, Data: good.Data},
		"extended":      {ID: TemperatureChannel, Extended: true, Len: 4, Data: good.Data},
		"remote":        {ID: TemperatureChannel, RTR: true, Len: 4},
	}
	for name, f := range cases {
		_, ok := Decode(f, TemperatureChannel)
		require.False(t, ok, name)
	}
}
