package playback

// State is the lifecycle state of a playback session.
type State int32

const (
	// StateStopped is the state before Start and after the session ends on
	// its own (loop budget exhausted, unrecoverable source error).
	StateStopped State = iota
	// StateInitializing covers opening and initializing the source in Start.
	StateInitializing
	// StatePlaying emits frames on every tick.
	StatePlaying
	// StatePaused keeps reading ahead but emits nothing.
	StatePaused
	// StateSeeking covers the source reposition in Seek.
	StateSeeking
	// StateClosed is terminal and entered only through Stop.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateInitializing:
		return "initializing"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateSeeking:
		return "seeking"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
