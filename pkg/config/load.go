package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/robotalks/canlink/pkg/bus"
)

// EnvPrefix prefixes all environment variables.
const EnvPrefix = "CANLINK_"

// Load builds a Config. The file comes from -config or CANLINK_CONFIG.
// Flags are registered on fs and parsed from args.
func Load(fs *flag.FlagSet, args []string, getenv func(string) string) (*Config, error) {
	conf := Defaults()
	path := configPath(args)
	if path == "" {
		path = getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := conf.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := conf.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	fs.String("config", path, "YAML configuration file")
	conf.SetupFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// ApplyEnv overrides c from CANLINK_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"NODE":     &c.Node,
		"ROLE":     &c.Role,
		"DRIVER":   &c.Driver,
		"IFACE":    &c.Interface,
		"HUB":      &c.Hub,
		"MQTT_URL": &c.MQTTURL,
		"SENSOR":   &c.Sensor.Kind,
	}
	for name, ptr := range strs {
		if val := getenv(EnvPrefix + name); val != "" {
			*ptr = val
		}
	}
	if val := getenv(EnvPrefix + "CHANNEL"); val != "" {
		if err := c.Channel.Set(val); err != nil {
			return fmt.Errorf("%sCHANNEL: %v", EnvPrefix, err)
		}
	}
	if val := getenv(EnvPrefix + "BITRATE"); val != "" {
		b, err := bus.ParseBitrate(val)
		if err != nil {
			return fmt.Errorf("%sBITRATE: %v", EnvPrefix, err)
		}
		c.Bus.Bitrate = b
	}
	if val := getenv(EnvPrefix + "MAILBOX"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%sMAILBOX: %v", EnvPrefix, err)
		}
		c.Mailbox = n
	}
	return nil
}

// configPath finds -config in args before flags are parsed.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if strings.HasPrefix(name, "config=") {
			return strings.TrimPrefix(name, "config=")
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
