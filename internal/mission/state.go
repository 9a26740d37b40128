package mission

// State is the phase of the acquisition loop. A mission walks them strictly
// in order: IDLE while hardware comes up, ARMED while blocked on the
// trigger, RECORDING while frames flow, STOPPING while resources drain, and
// RESTARTING when the supervisor takes over to rebuild a clean slate.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateRecording
	StateStopping
	StateRestarting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArmed:
		return "ARMED"
	case StateRecording:
		return "RECORDING"
	case StateStopping:
		return "STOPPING"
	case StateRestarting:
		return "RESTARTING"
	default:
		return "UNKNOWN"
	}
}
