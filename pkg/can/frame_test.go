package can

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameValidate(t *testing.T) {
	testCases := []struct {
		name  string
		frame Frame
		err   error
	}{
		{"standard", Frame{ID: 0x1A0, Len: 4}, nil},
		{"max standard", Frame{ID: MaxStdID}, nil},
		{"standard out of range", Frame{ID: 0x800}, ErrInvalidID},
		{"extended", Frame{ID: 0x1ABCDEFF, Extended: true}, nil},
		{"extended out of range", Frame{ID: 0x20000000, Extended: true}, ErrInvalidID},
		{"length", Frame{ID: 0x100, Len: 9}, ErrInvalidLen},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.err, tc.frame.Validate())
		})
	}
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(0x321, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "321 [5] 68 65 6C 6C 6F", f.String())
	require.Equal(t, []byte("hello"), f.Payload())

	_, err = NewFrame(0x321, make([]byte, 9))
	require.Equal(t, ErrInvalidLen, err)
	_, err = NewFrame(0x999, nil)
	require.Equal(t, ErrInvalidID, err)
}

func TestFrameString(t *testing.T) {
	require.Equal(t, "1ABCDEFF [0] RTR", Frame{ID: 0x1ABCDEFF, Extended: true, RTR: true}.String())
	require.Equal(t, "00F [0]", Frame{ID: 0xF}.String())
}

func TestFrameBinary(t *testing.T) {
	f, err := NewFrame(0x1A0, []byte{0, 0, 0xBC, 0x41})
	require.NoError(t, err)
	b, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{
		0xA0, 0x01, 0, 0, 4, 0, 0, 0,
		0, 0, 0xBC, 0x41, 0, 0, 0, 0,
	}, b)
	var g Frame
	require.NoError(t, g.UnmarshalBinary(b))
	require.Equal(t, f, g)

	ext := Frame{ID: 0x1ABCDEFF, Extended: true, RTR: true}
	b, err = ext.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, g.UnmarshalBinary(b))
	require.Equal(t, ext, g)

	require.Error(t, g.UnmarshalBinary(b[:8]))
}

func TestFrameBinaryErrorFrame(t *testing.T) {
	b := make([]byte, WireSize)
	binary.LittleEndian.PutUint32(b, errFlag|ErrClassBusOff)
	var f Frame
	err := f.UnmarshalBinary(b)
	require.Error(t, err)
	errFrame, ok := err.(*ErrorFrame)
	require.True(t, ok)
	require.True(t, errFrame.BusOff())
}
