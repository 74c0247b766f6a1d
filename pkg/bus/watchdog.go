package bus

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// DefaultWatchInterval is how often Watchdog checks the state.
const DefaultWatchInterval = time.Second

// Watchdog recovers a Faulted or Stopped bus on a fixed interval. It is for
// nodes that never transmit; where a transmitter runs, that task owns
// recovery and no Watchdog may be started.
type Watchdog struct {
	Bus interface {
		State() State
		Recover() bool
	}
	Interval time.Duration
}

// Run implements framework.Runnable.
func (w *Watchdog) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if state := w.Bus.State(); state != Running {
			glog.Warningf("bus: watchdog found %s", state)
			w.Bus.Recover()
		}
	}
}
