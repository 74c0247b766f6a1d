// Package sh is the interactive debug shell. Commands are not registered
// globally; main assembles a Registry and hands it to New.
package sh

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/canlink/pkg/bus"
	"github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/telemetry"
)

// Bus is the part of bus.Manager available to commands.
type Bus interface {
	Send(ctx context.Context, frame can.Frame, timeout time.Duration) error
	Receive(ctx context.Context, timeout time.Duration) (can.Frame, error)
	Recover() bool
	State() bus.State
	Stats() bus.Stats
}

// Target is what commands operate on.
type Target struct {
	Bus     Bus
	Source  telemetry.SampleSource
	Channel uint32
}

// Registry is an ordered list of commands.
type Registry struct {
	cmds []*ishell.Cmd
}

// Add appends commands.
func (r *Registry) Add(cmds ...*ishell.Cmd) *Registry {
	r.cmds = append(r.cmds, cmds...)
	return r
}

// Cmds returns registered commands.
func (r *Registry) Cmds() []*ishell.Cmd {
	return r.cmds
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Target *Target
}

const shellKey = "$shell"

// DefaultTimeout bounds a single bus operation started from the shell.
const DefaultTimeout = time.Second

// New creates a new shell with the commands of reg.
func New(target *Target, reg *Registry) *Shell {
	s := &Shell{
		Interactive: true,
		Timeout:     DefaultTimeout,
		Shell:       ishell.New(),
		Target:      target,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("canlink > ")
	for _, cmd := range reg.Cmds() {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Output prints v as JSON when OutputJSON is set, text otherwise.
func Output(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Run processes args as a single command, or runs the interactive shell
// when args is empty.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if !s.Interactive {
		return fmt.Errorf("command expected")
	}
	s.Shell.Run()
	return nil
}
