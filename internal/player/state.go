package player

type State int

const (
	StateIdle State = iota
	StateStarting
	StatePlaying
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateDestroying:
		return "destroying"
	}
	return "unknown"
}

type Event int

const (
	EventEnqueued Event = iota
	EventStarted
	EventCompleted
	EventFailed
	EventStop
)

func (e Event) String() string {
	switch e {
	case EventEnqueued:
		return "enqueued"
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventStop:
		return "stop"
	}
	return "unknown"
}

type Action int

const (
	ActionNone Action = iota
	// ActionStartHead starts playback of the queue head.
	ActionStartHead
	// ActionAdvance drops the head and starts the new one.
	ActionAdvance
	// ActionShiftAndIdle drops the head and arms the idle reclaimer.
	ActionShiftAndIdle
	// ActionTeardown hands the session to the voice manager.
	ActionTeardown
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStartHead:
		return "start_head"
	case ActionAdvance:
		return "advance"
	case ActionShiftAndIdle:
		return "shift_and_idle"
	case ActionTeardown:
		return "teardown"
	}
	return "unknown"
}

// Transition is the playback state machine. queued counts the songs in the
// queue including the head.
func Transition(s State, e Event, queued int) (State, Action) {
	if s == StateDestroying {
		return s, ActionNone
	}
	if e == EventStop {
		return StateDestroying, ActionTeardown
	}

	switch s {
	case StateIdle:
		if e == EventEnqueued {
			return StateStarting, ActionStartHead
		}
		// outcome of a playback that is already gone
		return s, ActionNone

	case StateStarting, StatePlaying:
		switch e {
		case EventEnqueued:
			return s, ActionNone
		case EventStarted:
			return StatePlaying, ActionNone
		case EventCompleted:
			if queued > 1 {
				return StateStarting, ActionAdvance
			}
			return StateIdle, ActionShiftAndIdle
		case EventFailed:
			if queued > 1 {
				return StateStarting, ActionAdvance
			}
			return StateDestroying, ActionTeardown
		}
	}
	return s, ActionNone
}
