// Package bus owns the lifecycle of the CAN controller.
//
// Manager is the single place where the controller is installed, started,
// stopped and uninstalled. Tasks only send and receive through it, and
// exactly one task is expected to call Recover.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/canlink/pkg/can"
	"github.com/robotalks/canlink/pkg/framework"
)

type counters struct {
	txFrames         uint64
	txErrors         uint64
	rxFrames         uint64
	rxErrors         uint64
	busOffs          uint64
	recoveries       uint64
	failedRecoveries uint64
}

// Manager drives a Controller through Stopped, Running and Faulted.
type Manager struct {
	// keep first for 64-bit alignment of atomic access.
	counters counters

	// Notifier is optional. Set it before Start.
	Notifier StateNotifier

	ctl Controller

	// lock serializes lifecycle transitions.
	lock   sync.Mutex
	state  int32
	epoch  uint64
	config Config
}

// NewManager creates a Manager in Stopped state.
func NewManager(ctl Controller) *Manager {
	return &Manager{ctl: ctl, config: DefaultConfig()}
}

// State returns current state.
func (m *Manager) State() State {
	return State(atomic.LoadInt32(&m.state))
}

// Config returns the configuration of the last Start.
func (m *Manager) Config() Config {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.config
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		TxFrames:         atomic.LoadUint64(&m.counters.txFrames),
		TxErrors:         atomic.LoadUint64(&m.counters.txErrors),
		RxFrames:         atomic.LoadUint64(&m.counters.rxFrames),
		RxErrors:         atomic.LoadUint64(&m.counters.rxErrors),
		BusOffs:          atomic.LoadUint64(&m.counters.busOffs),
		Recoveries:       atomic.LoadUint64(&m.counters.recoveries),
		FailedRecoveries: atomic.LoadUint64(&m.counters.failedRecoveries),
	}
}

// Start installs and starts the controller with cfg. Only a Stopped
// controller can be started; a Faulted one goes through Recover or Stop.
// If starting fails after a successful install, the controller is
// uninstalled before the error is returned and the state stays Stopped.
func (m *Manager) Start(cfg Config) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if State(atomic.LoadInt32(&m.state)) != Stopped {
		return &OpError{Op: "start", Err: ErrInvalidState}
	}
	return m.startLocked(cfg)
}

func (m *Manager) startLocked(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return &OpError{Op: "config", Err: err}
	}
	m.config = cfg
	if err := m.ctl.Install(cfg); err != nil {
		m.setStateLocked(Stopped)
		return &OpError{Op: "install", Err: err}
	}
	if err := m.ctl.Start(); err != nil {
		if uerr := m.ctl.Uninstall(); uerr != nil {
			glog.Errorf("bus: uninstall after failed start: %v", uerr)
		}
		m.setStateLocked(Stopped)
		return &OpError{Op: "start", Err: err}
	}
	m.epoch++
	m.setStateLocked(Running)
	glog.Infof("bus: started at %s (txq=%d rxq=%d)", cfg.Bitrate, cfg.TxQueueLen, cfg.RxQueueLen)
	return nil
}

// Stop stops then uninstalls the controller. Both steps are always
// attempted; failures are logged and returned together.
func (m *Manager) Stop() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.stopLocked()
}

func (m *Manager) stopLocked() error {
	var errs framework.AggregatedError
	if err := m.ctl.Stop(); err != nil {
		glog.Warningf("bus: stop: %v", err)
		errs.Add(&OpError{Op: "stop", Err: err})
	}
	if err := m.ctl.Uninstall(); err != nil {
		glog.Warningf("bus: uninstall: %v", err)
		errs.Add(&OpError{Op: "uninstall", Err: err})
	}
	m.setStateLocked(Stopped)
	return errs.Aggregate()
}

// Recover reinitializes the controller with the configuration of the last
// Start: stop, uninstall, pause, install, start. One attempt per call.
// It returns whether the controller is Running afterwards.
func (m *Manager) Recover() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	glog.Warningf("bus: recovering controller from %s", State(atomic.LoadInt32(&m.state)))
	m.stopLocked()
	if d := m.config.RecoveryDelay; d > 0 {
		time.Sleep(d)
	}
	if err := m.startLocked(m.config); err != nil {
		atomic.AddUint64(&m.counters.failedRecoveries, 1)
		glog.Errorf("bus: recovery failed: %v", err)
		return false
	}
	atomic.AddUint64(&m.counters.recoveries, 1)
	return true
}

// Send makes one attempt to transmit frame.
// Errors are ErrTimeout, ErrBusOff, ErrInvalidState or a driver error.
func (m *Manager) Send(ctx context.Context, frame can.Frame, timeout time.Duration) error {
	epoch, ok := m.running()
	if !ok {
		atomic.AddUint64(&m.counters.txErrors, 1)
		return ErrInvalidState
	}
	if err := frame.Validate(); err != nil {
		atomic.AddUint64(&m.counters.txErrors, 1)
		return err
	}
	err := m.ctl.Transmit(ctx, frame, timeout)
	if err != nil {
		atomic.AddUint64(&m.counters.txErrors, 1)
		m.checkFault(epoch, err)
		return err
	}
	atomic.AddUint64(&m.counters.txFrames, 1)
	return nil
}

// Receive waits for one inbound frame. ErrTimeout is the expected result
// when the bus is idle.
func (m *Manager) Receive(ctx context.Context, timeout time.Duration) (can.Frame, error) {
	epoch, ok := m.running()
	if !ok {
		return can.Frame{}, ErrInvalidState
	}
	frame, err := m.ctl.Receive(ctx, timeout)
	if err != nil {
		if !errors.Is(err, ErrTimeout) && ctx.Err() == nil {
			atomic.AddUint64(&m.counters.rxErrors, 1)
			m.checkFault(epoch, err)
		}
		return frame, err
	}
	atomic.AddUint64(&m.counters.rxFrames, 1)
	return frame, nil
}

func (m *Manager) running() (uint64, bool) {
	if State(atomic.LoadInt32(&m.state)) != Running {
		return 0, false
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.epoch, State(atomic.LoadInt32(&m.state)) == Running
}

// checkFault moves a Running controller to Faulted when err requires
// reinitialization. A result from before the latest Start is ignored.
func (m *Manager) checkFault(epoch uint64, err error) {
	if !IsFault(err) {
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.epoch != epoch || State(atomic.LoadInt32(&m.state)) != Running {
		return
	}
	if errors.Is(err, ErrBusOff) {
		atomic.AddUint64(&m.counters.busOffs, 1)
	}
	glog.Errorf("bus: controller fault: %v", err)
	m.setStateLocked(Faulted)
}

func (m *Manager) setStateLocked(state State) {
	if State(atomic.SwapInt32(&m.state, int32(state))) == state {
		return
	}
	if n := m.Notifier; n != nil {
		n.StateChanged(state)
	}
}
