// Package config assembles node configuration from defaults, an optional
// YAML file, CANLINK_* environment variables and command line flags, in
// increasing precedence.
package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/env"
	"github.com/robotalks/canlink/pkg/telemetry"
)

// Roles.
const (
	RoleSensor   = "sensor"
	RoleListener = "listener"
)

// Drivers.
const (
	DriverLoopback  = "loopback"
	DriverSocketCAN = "socketcan"
	DriverNetbus    = "netbus"
)

// Sensor kinds.
const (
	SensorIIO       = "iio"
	SensorSimulated = "simulated"
)

// SamplerConfig configures the Sampler.
type SamplerConfig struct {
	Period        time.Duration `yaml:"period"`
	SubmitTimeout time.Duration `yaml:"submitTimeout"`
}

// TransmitterConfig configures the Transmitter.
type TransmitterConfig struct {
	SendTimeout time.Duration `yaml:"sendTimeout"`
}

// ReceiverConfig configures the Receiver.
type ReceiverConfig struct {
	ReceiveTimeout time.Duration `yaml:"receiveTimeout"`
	FaultBackoff   time.Duration `yaml:"faultBackoff"`
}

// SensorConfig selects the temperature source.
type SensorConfig struct {
	Kind       string  `yaml:"kind"`
	IIORoot    string  `yaml:"iioRoot"`
	IIODevice  int     `yaml:"iioDevice"`
	IIOChannel int     `yaml:"iioChannel"`
	SimCelsius float32 `yaml:"simCelsius"`
}

// Config is the complete node configuration.
type Config struct {
	Node      string     `yaml:"node"`
	Role      string     `yaml:"role"`
	Driver    string     `yaml:"driver"`
	Interface string     `yaml:"interface"`
	Hub       string     `yaml:"hub"`
	Channel   ChannelID  `yaml:"channel"`
	Mailbox   int        `yaml:"mailbox"`
	Bus       bus.Config `yaml:"bus"`
	MQTTURL   string     `yaml:"mqtt"`

	Sampler     SamplerConfig     `yaml:"sampler"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
	Receiver    ReceiverConfig    `yaml:"receiver"`
	Sensor      SensorConfig      `yaml:"sensor"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Node:      env.MachineID(),
		Role:      RoleSensor,
		Driver:    DriverSocketCAN,
		Interface: "can0",
		Hub:       "localhost:7080",
		Channel:   ChannelID(telemetry.TemperatureChannel),
		Mailbox:   telemetry.DefaultMailboxCapacity,
		Bus:       bus.DefaultConfig(),
		Sampler: SamplerConfig{
			Period:        telemetry.DefaultSamplePeriod,
			SubmitTimeout: telemetry.DefaultSubmitTimeout,
		},
		Transmitter: TransmitterConfig{
			SendTimeout: telemetry.DefaultSendTimeout,
		},
		Receiver: ReceiverConfig{
			ReceiveTimeout: telemetry.DefaultReceiveTimeout,
			FaultBackoff:   telemetry.DefaultFaultBackoff,
		},
		Sensor: SensorConfig{
			Kind:       SensorIIO,
			SimCelsius: 23,
		},
	}
}

// LoadFile merges the YAML file at path into c. Unknown keys are errors.
func (c *Config) LoadFile(path string) error {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(content, c); err != nil {
		return fmt.Errorf("%s: %v", path, err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Node == "" {
		return fmt.Errorf("node name required")
	}
	switch c.Role {
	case RoleSensor, RoleListener:
	default:
		return fmt.Errorf("unknown role %q", c.Role)
	}
	switch c.Driver {
	case DriverLoopback:
	case DriverSocketCAN:
		if c.Interface == "" {
			return fmt.Errorf("socketcan requires an interface")
		}
	case DriverNetbus:
		if c.Hub == "" {
			return fmt.Errorf("netbus requires a hub address")
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if uint32(c.Channel) > 0x7FF {
		return fmt.Errorf("channel %s exceeds 11 bits", c.Channel)
	}
	if c.Mailbox <= 0 {
		return fmt.Errorf("mailbox capacity must be positive")
	}
	if err := c.Bus.Validate(); err != nil {
		return fmt.Errorf("bus: %v", err)
	}
	if c.Sampler.Period <= 0 {
		return fmt.Errorf("sampler period must be positive")
	}
	if c.Sampler.SubmitTimeout < 0 {
		return fmt.Errorf("sampler submit timeout must not be negative")
	}
	if c.Transmitter.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be positive")
	}
	if c.Receiver.ReceiveTimeout <= 0 {
		return fmt.Errorf("receive timeout must be positive")
	}
	if c.Receiver.FaultBackoff < 0 {
		return fmt.Errorf("fault backoff must not be negative")
	}
	switch c.Sensor.Kind {
	case SensorIIO, SensorSimulated:
	default:
		return fmt.Errorf("unknown sensor %q", c.Sensor.Kind)
	}
	return nil
}

// ChannelID is an 11-bit identifier written as 0x1A0 or 416.
type ChannelID uint32

func (id ChannelID) String() string {
	return fmt.Sprintf("0x%03X", uint32(id))
}

// Set implements flag.Value.
func (id *ChannelID) Set(s string) error {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return fmt.Errorf("invalid channel %q", s)
	}
	*id = ChannelID(v)
	return nil
}

// SetupFlags registers flags on fs bound to c. Current values become the
// flag defaults.
func (c *Config) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Node, "node", c.Node, "Node name, defaults to the machine ID")
	fs.StringVar(&c.Role, "role", c.Role, "Node role: sensor or listener")
	fs.StringVar(&c.Driver, "driver", c.Driver, "Bus driver: socketcan, netbus or loopback")
	fs.StringVar(&c.Interface, "iface", c.Interface, "SocketCAN interface")
	fs.StringVar(&c.Hub, "hub", c.Hub, "netbus hub address, host:port or ws://host:port/bus")
	fs.Var(&c.Channel, "channel", "Telemetry channel identifier")
	fs.IntVar(&c.Mailbox, "mailbox", c.Mailbox, "Mailbox capacity")
	fs.Var(&c.Bus.Bitrate, "bitrate", "Bus bit rate: 125k, 250k, 500k or 1M")
	fs.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT broker URL for uplink, e.g. mqtt://host:1883/canlink/")
	fs.DurationVar(&c.Sampler.Period, "sample-period", c.Sampler.Period, "Sampling period")
	fs.StringVar(&c.Sensor.Kind, "sensor", c.Sensor.Kind, "Temperature source: iio or simulated")
	fs.IntVar(&c.Sensor.IIODevice, "iio-device", c.Sensor.IIODevice, "IIO device number")
	fs.IntVar(&c.Sensor.IIOChannel, "iio-channel", c.Sensor.IIOChannel, "IIO voltage channel")
}
