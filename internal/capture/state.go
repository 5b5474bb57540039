package capture

// State is the recording session lifecycle. Transitions go
// Idle → Starting → Recording → Stopping → Idle, with Failed reachable
// from Starting or Recording before resetting to Idle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRecording
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session is the one recording slot. The whole process owns at most one.
type Session struct {
	ID       string
	TargetID string

	HasAmbient bool
	HasLocal   bool
}
