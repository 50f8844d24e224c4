package companion

// Phase is the controller's position in the submit, reply, speak cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingReply
	PhaseSynthesizing
	PhasePlaying
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingReply:
		return "awaiting_reply"
	case PhaseSynthesizing:
		return "synthesizing"
	case PhasePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// transitions lists, per phase, the phases it may move to. A new submission
// may start while an earlier reply is still being spoken.
var transitions = map[Phase][]Phase{
	PhaseIdle:          {PhaseAwaitingReply},
	PhaseAwaitingReply: {PhaseSynthesizing, PhasePlaying, PhaseIdle},
	PhaseSynthesizing:  {PhasePlaying, PhaseIdle, PhaseAwaitingReply},
	PhasePlaying:       {PhaseIdle, PhaseSynthesizing, PhaseAwaitingReply},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Phase) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
