package poller

// State is the lifecycle phase of the polling loop.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopped
	StateFatallyFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFatallyFailed:
		return "fatally_failed"
	default:
		return "unknown"
	}
}
