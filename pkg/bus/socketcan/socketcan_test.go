package socketcan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
)

var _ bus.Controller = (*Controller)(nil)

func TestInstallMissingInterface(t *testing.T) {
	c := New("nocan42")
	require.Error(t, c.Install(bus.DefaultConfig()))
	require.Equal(t, bus.ErrInvalidState, c.Start())
	require.Equal(t, bus.ErrInvalidState, c.Transmit(context.Background(), can.Frame{}, 0))
}
