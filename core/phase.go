package conversation

// Phase is the externally visible state of the conversation engine. A turn
// moves Idle -> (Greeting) -> Listening -> Processing -> (Speaking) ->
// Finished and back to Idle; Failed is reached from any phase and sticks
// until the next turn starts.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGreeting
	PhaseListening
	PhaseProcessing
	PhaseSpeaking
	PhaseFinished
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGreeting:
		return "greeting"
	case PhaseListening:
		return "listening"
	case PhaseProcessing:
		return "processing"
	case PhaseSpeaking:
		return "speaking"
	case PhaseFinished:
		return "finished"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}
