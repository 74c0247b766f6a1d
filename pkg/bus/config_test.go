package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestParseBitrate(t *testing.T) {
	cases := []struct {
		in  string
		out Bitrate
		ok  bool
	}{
		{"125k", Bitrate125K, true},
		{"250K", Bitrate250K, true},
		{"500k", Bitrate500K, true},
		{"1M", Bitrate1M, true},
		{"500000", Bitrate500K, true},
		{"800k", 0, false},
		{"fast", 0, false},
	}
	for _, c := range cases {
		b, err := ParseBitrate(c.in)
		if !c.ok {
			require.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		require.Equal(t, c.out, b, c.in)
	}
	require.Equal(t, "500k", Bitrate500K.String())
	require.Equal(t, "1M", Bitrate1M.String())
}

func TestConfigYAML(t *testing.T) {
	cfg := DefaultConfig()
	doc := "bitrate: 250k\nrxQueueLen: 8\nrecoveryDelay: 250ms\n"
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	require.Equal(t, Bitrate250K, cfg.Bitrate)
	require.Equal(t, 5, cfg.TxQueueLen)
	require.Equal(t, 8, cfg.RxQueueLen)
	require.Equal(t, 250*time.Millisecond, cfg.RecoveryDelay)
	require.NoError(t, cfg.Validate())

	require.Error(t, yaml.Unmarshal([]byte("bitrate: 100k\n"), &cfg))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.TxQueueLen = 0
	require.Error(t, cfg.Validate())
	cfg = DefaultConfig()
	cfg.Filter = 3
	require.Error(t, cfg.Validate())
}
