package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/bus/loopback"
	"github.com/robotalks/canlink/pkg/config"
	fx "github.com/robotalks/canlink/pkg/framework"
	"github.com/robotalks/canlink/pkg/node"
)

func main() {
	conf, err := config.Load(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		glog.Exitf("config: %v", err)
	}

	var nodes []fx.Runnable
	if conf.Driver == config.DriverLoopback {
		// Without a physical bus, pair the node with an in-process peer
		// of the opposite role.
		lb := loopback.NewBus()
		peerConf := *conf
		peerConf.Node = conf.Node + "-peer"
		peerConf.MQTTURL = ""
		if conf.Role == config.RoleSensor {
			peerConf.Role = config.RoleListener
		} else {
			peerConf.Role = config.RoleSensor
			peerConf.Sensor.Kind = config.SensorSimulated
		}
		nodes = append(nodes, mustNode(conf, lb.Controller()), mustNode(&peerConf, lb.Controller()))
	} else {
		nodes = append(nodes, mustNode(conf, nil))
	}

	if err := fx.NewRunner().HandleSignals().Go(nodes...).Wait(); err != nil {
		glog.Exit(err)
	}
}

func mustNode(conf *config.Config, ctl bus.Controller) *node.Node {
	n, err := node.New(conf, ctl)
	if err != nil {
		glog.Exit(err)
	}
	return n
}
