package session

// State is the lifecycle state of a capture session.
type State uint8

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Stopped
	Failed
)

var stateNames = [...]string{
	Idle:     "idle",
	Starting: "starting",
	Running:  "running",
	Stopping: "stopping",
	Stopped:  "stopped",
	Failed:   "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Active reports whether a run is in progress.
func (s State) Active() bool {
	return s == Starting || s == Running || s == Stopping
}
