package ingester

// State is a phase of the sync orchestrator lifecycle.
type State int32

const (
	StateResuming State = iota
	StateCatchingUp
	StateRealTime
	StateStopped
	StateAborted
)

// States lists every State name, in lifecycle order.
func States() []string {
	return []string{
		StateResuming.String(),
		StateCatchingUp.String(),
		StateRealTime.String(),
		StateStopped.String(),
		StateAborted.String(),
	}
}

func (s State) String() string {
	switch s {
	case StateResuming:
		return "resuming"
	case StateCatchingUp:
		return "catching_up"
	case StateRealTime:
		return "real_time"
	case StateStopped:
		return "stopped"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the orchestrator can no longer leave s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateAborted
}
