// Package can provides the can.* debug shell commands.
package can

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/canlink/pkg/bus"
	canframe "github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/cli/sh"
	"github.com/robotalks/canlink/pkg/telemetry"
)

// ParseFrame parses "1A0 0000BC41" or cansend style "1A0#0000BC41".
func ParseFrame(args []string) (canframe.Frame, error) {
	if len(args) == 1 && strings.Contains(args[0], "#") {
		args = strings.SplitN(args[0], "#", 2)
	}
	if len(args) < 1 {
		return canframe.Frame{}, fmt.Errorf("ID required")
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(args[0]), "0x"), 16, 32)
	if err != nil {
		return canframe.Frame{}, fmt.Errorf("invalid ID: %v", err)
	}
	var data []byte
	if len(args) > 1 {
		hexStr := strings.Join(args[1:], "")
		hexStr = strings.Replace(hexStr, ".", "", -1)
		if data, err = hex.DecodeString(hexStr); err != nil {
			return canframe.Frame{}, fmt.Errorf("invalid DATA: %v", err)
		}
	}
	return canframe.NewFrame(uint32(id), data)
}

// FrameResult is the JSON form of a frame.
type FrameResult struct {
	ID      string   `json:"id"`
	Len     uint8    `json:"len"`
	Data    string   `json:"data"`
	Celsius *float32 `json:"celsius,omitempty"`
}

// Describe renders a frame and, when it is a sample of channel, its value.
func Describe(frame canframe.Frame, channel uint32) (FrameResult, string) {
	res := FrameResult{
		ID:   fmt.Sprintf("%03X", frame.ID),
		Len:  frame.Len,
		Data: strings.ToUpper(hex.EncodeToString(frame.Payload())),
	}
	text := frame.String()
	if s, ok := telemetry.Decode(frame, channel); ok {
		v := float32(s)
		res.Celsius = &v
		text += fmt.Sprintf("  (%.2f °C)", v)
	}
	return res, text
}

// ReceiveFrames receives up to n frames, stopping at the first timeout.
func ReceiveFrames(ctx context.Context, b sh.Bus, n int, timeout time.Duration) ([]canframe.Frame, error) {
	var frames []canframe.Frame
	for len(frames) < n {
		frame, err := b.Receive(ctx, timeout)
		if errors.Is(err, bus.ErrTimeout) {
			break
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// StatusResult is the JSON form of can.status.
type StatusResult struct {
	State string    `json:"state"`
	Stats bus.Stats `json:"stats"`
}

var (
	// SendCmd transmits one frame.
	SendCmd = ishell.Cmd{
		Name: "can.send",
		Help: "ID [DATA] send one frame, e.g. can.send 1A0 0000BC41",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			frame, err := ParseFrame(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.Target.Bus.Send(context.Background(), frame, s.Timeout); err != nil {
				c.Err(err)
				return
			}
			sh.Output(c, map[string]bool{"ok": true}, "sent "+frame.String())
		},
	}

	// RecvCmd receives frames.
	RecvCmd = ishell.Cmd{
		Name: "can.recv",
		Help: "[N] receive up to N frames",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			n := 1
			if len(c.Args) > 0 {
				v, err := strconv.Atoi(c.Args[0])
				if err != nil || v <= 0 {
					c.Err(fmt.Errorf("invalid N: %q", c.Args[0]))
					return
				}
				n = v
			}
			frames, err := ReceiveFrames(context.Background(), s.Target.Bus, n, s.Timeout)
			for _, frame := range frames {
				res, text := Describe(frame, s.Target.Channel)
				sh.Output(c, res, text)
			}
			if err != nil {
				c.Err(err)
				return
			}
			if len(frames) == 0 && !s.OutputJSON {
				c.Println("no frame")
			}
		},
	}

	// StatusCmd prints the bus state and counters.
	StatusCmd = ishell.Cmd{
		Name: "can.status",
		Help: "show bus state and counters",
		Func: func(c *ishell.Context) {
			b := sh.ShellFrom(c).Target.Bus
			res := StatusResult{State: b.State().String(), Stats: b.Stats()}
			st := res.Stats
			sh.Output(c, res, fmt.Sprintf(
				"state=%s tx=%d txerr=%d rx=%d rxerr=%d busoff=%d recovered=%d failed=%d",
				res.State, st.TxFrames, st.TxErrors, st.RxFrames, st.RxErrors,
				st.BusOffs, st.Recoveries, st.FailedRecoveries))
		},
	}

	// RecoverCmd reinitializes the controller.
	RecoverCmd = ishell.Cmd{
		Name: "can.recover",
		Help: "stop and restart the bus controller",
		Func: func(c *ishell.Context) {
			b := sh.ShellFrom(c).Target.Bus
			if !b.Recover() {
				c.Err(fmt.Errorf("recovery failed, state %s", b.State()))
				return
			}
			sh.Output(c, map[string]string{"state": b.State().String()}, "recovered")
		},
	}
)

// Commands returns all can.* commands.
func Commands() []*ishell.Cmd {
	return []*ishell.Cmd{&SendCmd, &RecvCmd, &StatusCmd, &RecoverCmd}
}
