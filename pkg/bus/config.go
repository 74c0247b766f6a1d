package bus

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bitrate is one of the supported nominal bit rates.
type Bitrate int

// Supported bit rates.
const (
	Bitrate125K Bitrate = 125000
	Bitrate250K Bitrate = 250000
	Bitrate500K Bitrate = 500000
	Bitrate1M   Bitrate = 1000000
)

// Valid tells whether b is one of the supported bit rates.
func (b Bitrate) Valid() bool {
	switch b {
	case Bitrate125K, Bitrate250K, Bitrate500K, Bitrate1M:
		return true
	}
	return false
}

func (b Bitrate) String() string {
	switch {
	case b >= 1000000 && b%1000000 == 0:
		return strconv.Itoa(int(b)/1000000) + "M"
	case b >= 1000 && b%1000 == 0:
		return strconv.Itoa(int(b)/1000) + "k"
	default:
		return strconv.Itoa(int(b))
	}
}

// ParseBitrate parses "500k", "1M" or a plain number of bit/s.
func ParseBitrate(s string) (Bitrate, error) {
	str := strings.TrimSpace(s)
	mul := 1
	switch {
	case strings.HasSuffix(str, "k"), strings.HasSuffix(str, "K"):
		mul, str = 1000, str[:len(str)-1]
	case strings.HasSuffix(str, "M"), strings.HasSuffix(str, "m"):
		mul, str = 1000000, str[:len(str)-1]
	}
	n, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid bitrate %q", s)
	}
	b := Bitrate(n * mul)
	if !b.Valid() {
		return 0, fmt.Errorf("unsupported bitrate %q", s)
	}
	return b, nil
}

// Set implements flag.Value.
func (b *Bitrate) Set(s string) error {
	v, err := ParseBitrate(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UnmarshalYAML accepts either "500k" style strings or plain numbers.
func (b *Bitrate) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return b.Set(s)
}

// FilterPolicy selects the controller acceptance filter.
type FilterPolicy int

// AcceptAll lets every inbound frame through; filtering by identifier
// happens in the decoder.
const AcceptAll FilterPolicy = 0

// Config is the timing and filter configuration applied on install.
type Config struct {
	Bitrate       Bitrate       `yaml:"bitrate"`
	TxQueueLen    int           `yaml:"txQueueLen"`
	RxQueueLen    int           `yaml:"rxQueueLen"`
	Filter        FilterPolicy  `yaml:"-"`
	RecoveryDelay time.Duration `yaml:"recoveryDelay"`
}

// DefaultConfig matches the deployed firmware: 500 kbit/s, 5 deep queues.
func DefaultConfig() Config {
	return Config{
		Bitrate:       Bitrate500K,
		TxQueueLen:    5,
		RxQueueLen:    5,
		Filter:        AcceptAll,
		RecoveryDelay: 100 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.Bitrate.Valid() {
		return fmt.Errorf("unsupported bitrate %d", int(c.Bitrate))
	}
	if c.TxQueueLen <= 0 || c.RxQueueLen <= 0 {
		return fmt.Errorf("queue lengths must be positive (tx=%d rx=%d)", c.TxQueueLen, c.RxQueueLen)
	}
	if c.Filter != AcceptAll {
		return fmt.Errorf("unsupported filter policy %d", c.Filter)
	}
	if c.RecoveryDelay < 0 {
		return fmt.Errorf("negative recovery delay")
	}
	return nil
}
