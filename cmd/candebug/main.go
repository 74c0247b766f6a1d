package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/bus/loopback"
	"github.com/robotalks/canlink/pkg/cli/cmds/can"
	"github.com/robotalks/canlink/pkg/cli/cmds/temp"
	"github.com/robotalks/canlink/pkg/cli/sh"
	"github.com/robotalks/canlink/pkg/config"
	"github.com/robotalks/canlink/pkg/node"
)

var (
	outputJSON  bool
	interactive = true
)

func init() {
	flag.BoolVar(&outputJSON, "json", outputJSON, "Output in JSON")
	flag.BoolVar(&interactive, "i", interactive, "Start the interactive shell when no command is given")
}

func main() {
	conf, err := config.Load(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		glog.Exitf("config: %v", err)
	}

	var ctl bus.Controller
	if conf.Driver == config.DriverLoopback {
		ctl = loopback.NewBus().Controller()
	} else if ctl, err = node.NewController(conf); err != nil {
		glog.Exit(err)
	}
	m := bus.NewManager(ctl)
	if err := m.Start(conf.Bus); err != nil {
		fmt.Fprintf(os.Stderr, "bus start: %v\n", err)
	}
	defer m.Stop()

	target := &sh.Target{Bus: m, Channel: uint32(conf.Channel)}
	if src, err := node.NewSource(conf.Sensor); err == nil {
		target.Source = src
	}

	reg := &sh.Registry{}
	reg.Add(can.Commands()...).Add(temp.Commands()...)
	s := sh.New(target, reg)
	s.OutputJSON = outputJSON
	s.Interactive = interactive
	if err := s.Run(flag.Args()...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		m.Stop()
		os.Exit(1)
	}
}
