package bus

// State is the lifecycle state of the bus controller.
type State int32

// States.
const (
	Stopped State = iota
	Running
	Faulted
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// StateNotifier is called when the bus state changes.
// It runs synchronously inside the transition and must not call back into
// the Manager lifecycle methods.
type StateNotifier interface {
	StateChanged(State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(state State) {
	f(state)
}

// Stats are cumulative counters kept by the Manager.
type Stats struct {
	TxFrames         uint64
	TxErrors         uint64
	RxFrames         uint64
	RxErrors         uint64
	BusOffs          uint64
	Recoveries       uint64
	FailedRecoveries uint64
}
