// Package node wires a configured telemetry node together: the bus, the
// sampler and transmitter pair of a sensor, and the receiver with its sinks.
package node

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/bus/netbus"
	"github.com/robotalks/canlink/pkg/bus/socketcan"
	"github.com/robotalks/canlink/pkg/config"
	"github.com/robotalks/canlink/pkg/framework"
	"github.com/robotalks/canlink/pkg/mqtt"
	"github.com/robotalks/canlink/pkg/sensor"
	"github.com/robotalks/canlink/pkg/telemetry"
)

// Node is one participant on the bus.
type Node struct {
	Config *config.Config
	Bus    *bus.Manager

	// Sensor role only.
	Source      sensor.Source
	Mailbox     *telemetry.Mailbox
	Sampler     *telemetry.Sampler
	Transmitter *telemetry.Transmitter

	// Listener role only.
	Watchdog *bus.Watchdog

	Receiver  *telemetry.Receiver
	Publisher *mqtt.Publisher
}

// NewController creates the controller selected by conf.Driver. The loopback
// driver has no standalone form, its controllers come from a shared
// loopback.Bus.
func NewController(conf *config.Config) (bus.Controller, error) {
	switch conf.Driver {
	case config.DriverSocketCAN:
		return socketcan.New(conf.Interface), nil
	case config.DriverNetbus:
		return netbus.NewController(netbus.Dialer(conf.Hub)), nil
	}
	return nil, fmt.Errorf("driver %q requires an explicit controller", conf.Driver)
}

// NewSource creates the temperature source selected by conf.
func NewSource(conf config.SensorConfig) (sensor.Source, error) {
	switch conf.Kind {
	case config.SensorIIO:
		return &sensor.LM35{ADC: &sensor.IIOADC{
			Root:    conf.IIORoot,
			Device:  conf.IIODevice,
			Channel: conf.IIOChannel,
		}}, nil
	case config.SensorSimulated:
		return &sensor.LM35{ADC: sensor.NewSimulatedADC(conf.SimCelsius)}, nil
	}
	return nil, fmt.Errorf("unknown sensor %q", conf.Kind)
}

// New builds a node on ctl. Pass a nil ctl to create one from the config.
func New(conf *config.Config, ctl bus.Controller) (*Node, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if ctl == nil {
		var err error
		if ctl, err = NewController(conf); err != nil {
			return nil, err
		}
	}
	n := &Node{Config: conf, Bus: bus.NewManager(ctl)}
	channel := uint32(conf.Channel)

	sinks := telemetry.Sinks{telemetry.LogSink{}}
	if conf.MQTTURL != "" {
		pub, err := mqtt.NewPublisher(conf.MQTTURL, mqtt.NodeMeta{
			Node:    conf.Node,
			Role:    conf.Role,
			Channel: conf.Channel.String(),
			Bitrate: conf.Bus.Bitrate.String(),
			Driver:  conf.Driver,
		})
		if err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		pub.Stats = n.Bus
		n.Bus.Notifier = pub
		n.Publisher = pub
		sinks = append(sinks, pub)
	}

	n.Receiver = telemetry.NewReceiver(n.Bus, channel, sinks)
	n.Receiver.ReceiveTimeout = conf.Receiver.ReceiveTimeout
	if conf.Receiver.FaultBackoff > 0 {
		n.Receiver.FaultBackoff = conf.Receiver.FaultBackoff
	}

	switch conf.Role {
	case config.RoleSensor:
		src, err := NewSource(conf.Sensor)
		if err != nil {
			return nil, err
		}
		mb, err := telemetry.NewMailbox(conf.Mailbox)
		if err != nil {
			return nil, err
		}
		n.Source, n.Mailbox = src, mb
		n.Sampler = telemetry.NewSampler(src, mb.Sender())
		n.Sampler.Period = conf.Sampler.Period
		n.Sampler.SubmitTimeout = conf.Sampler.SubmitTimeout
		n.Transmitter = telemetry.NewTransmitter(mb.Receiver(), n.Bus, channel)
		n.Transmitter.SendTimeout = conf.Transmitter.SendTimeout
	case config.RoleListener:
		n.Watchdog = &bus.Watchdog{Bus: n.Bus, Interval: n.Receiver.FaultBackoff}
	}
	return n, nil
}

// Name implements framework.Named.
func (n *Node) Name() string {
	return n.Config.Node
}

// Tasks lists the node's concurrent tasks.
func (n *Node) Tasks() []framework.Runnable {
	var tasks []framework.Runnable
	if n.Sampler != nil {
		tasks = append(tasks, framework.NamedRun("sampler", n.Sampler))
	}
	if n.Transmitter != nil {
		tasks = append(tasks, framework.NamedRun("transmitter", n.Transmitter))
	}
	if n.Watchdog != nil {
		tasks = append(tasks, framework.NamedRun("watchdog", n.Watchdog))
	}
	tasks = append(tasks, framework.NamedRun("receiver", n.Receiver))
	if n.Publisher != nil {
		tasks = append(tasks, framework.NamedRun("mqtt", n.Publisher))
	}
	return tasks
}

// Run starts the bus, runs every task until ctx is done and stops the bus.
// A bus that fails to start is left Stopped for the tasks to recover.
func (n *Node) Run(ctx context.Context) error {
	conf := n.Config
	if err := n.Bus.Start(conf.Bus); err != nil {
		glog.Errorf("node %s: bus start: %v", conf.Node, err)
	} else {
		glog.Infof("node %s: %s on %s at %s, channel %s",
			conf.Node, conf.Role, conf.Driver, conf.Bus.Bitrate, conf.Channel)
	}
	err := framework.NewRunnerWith(ctx).Go(n.Tasks()...).Wait()
	if stopErr := n.Bus.Stop(); stopErr != nil {
		glog.Errorf("node %s: bus stop: %v", conf.Node, stopErr)
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}
