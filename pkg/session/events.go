package session

// EventSink receives session events for display or broadcast.
// Implementations must not block; they are called from the session loop.
type EventSink interface {
	// StateChanged is called on every state transition.
	StateChanged(state State, reason Reason)

	// PartialTranscript is called with each interim transcription.
	PartialTranscript(text string)

	// TurnCompleted is called when a backend reply lands.
	TurnCompleted(turn Turn)

	// SessionError is called when a failure is surfaced. Terminal errors
	// are followed by a StateChanged(StateIdle, ReasonSessionFailed).
	SessionError(code ErrorCode, detail string)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) StateChanged(State, Reason)     {}
func (NopSink) PartialTranscript(string)       {}
func (NopSink) TurnCompleted(Turn)             {}
func (NopSink) SessionError(ErrorCode, string) {}

// Ensure NopSink implements EventSink.
var _ EventSink = NopSink{}
