// Package temp provides the temp.* debug shell commands.
package temp

import (
	"context"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/canlink/pkg/cli/sh"
	"github.com/robotalks/canlink/pkg/telemetry"
)

// Result is the JSON form of temp.read.
type Result struct {
	Celsius float32 `json:"celsius"`
	Sent    bool    `json:"sent,omitempty"`
}

// Read reads the source once and sends the sample when send is set.
func Read(ctx context.Context, target *sh.Target, send bool) (Result, error) {
	v, err := target.Source.Read(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Celsius: v}
	if send {
		frame := telemetry.Encode(telemetry.Sample(v), target.Channel)
		if err := target.Bus.Send(ctx, frame, sh.DefaultTimeout); err != nil {
			return res, err
		}
		res.Sent = true
	}
	return res, nil
}

// ReadCmd reads the temperature sensor.
var ReadCmd = ishell.Cmd{
	Name: "temp.read",
	Help: "[send] read the sensor, optionally transmit the sample",
	Func: func(c *ishell.Context) {
		s := sh.ShellFrom(c)
		if s.Target.Source == nil {
			c.Err(fmt.Errorf("no sensor configured"))
			return
		}
		send := len(c.Args) > 0 && c.Args[0] == "send"
		res, err := Read(context.Background(), s.Target, send)
		if err != nil {
			c.Err(err)
			return
		}
		text := strconv.FormatFloat(float64(res.Celsius), 'f', 2, 32) + " °C"
		if res.Sent {
			text += " (sent)"
		}
		sh.Output(c, res, text)
	},
}

// Commands returns all temp.* commands.
func Commands() []*ishell.Cmd {
	return []*ishell.Cmd{&ReadCmd}
}
