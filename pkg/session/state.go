package session

import "time"

// State is the voice session state.
type State int

const (
	// StateIdle indicates no active capture, backend call, or playback.
	StateIdle State = iota
	// StateListening indicates speech capture is running.
	StateListening
	// StateThinking indicates a backend call is in flight.
	StateThinking
	// StateSpeaking indicates reply playback is in progress.
	StateSpeaking
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Reason explains a state transition to observers.
type Reason string

const (
	ReasonSessionStarted    Reason = "session-started"
	ReasonUtteranceCommit   Reason = "utterance-committed"
	ReasonReplyReceived     Reason = "reply-received"
	ReasonPlaybackFinished  Reason = "playback-finished"
	ReasonPlaybackFailed    Reason = "playback-failed"
	ReasonWatchdogRecovery  Reason = "watchdog-recovery"
	ReasonNoSpeech          Reason = "no-speech"
	ReasonEmptyTranscript   Reason = "empty-transcript"
	ReasonRecognitionRetry  Reason = "recognition-retry"
	ReasonBackendRetry      Reason = "backend-retry"
	ReasonInterrupted       Reason = "interrupted"
	ReasonSessionStopped    Reason = "session-stopped"
	ReasonSessionFailed     Reason = "session-failed"
)

// ErrorCode classifies session errors for observers.
type ErrorCode string

const (
	CodePermissionDenied   ErrorCode = "permission-denied"
	CodeUnsupportedRuntime ErrorCode = "unsupported-runtime"
	CodeNoSpeech           ErrorCode = "no-speech"
	CodeRecognition        ErrorCode = "recognition"
	CodeBackendTimeout     ErrorCode = "backend-timeout"
	CodeBackendError       ErrorCode = "backend-error"
	CodeSynthesis          ErrorCode = "synthesis"
	CodeWatchdog           ErrorCode = "watchdog"
)

// Status is a point-in-time snapshot of the session.
type Status struct {
	// ID is the session identifier.
	ID string `json:"id"`

	// State is the current state.
	State State `json:"-"`

	// Active is true while the session loop should keep going.
	// Distinct from State: a stopping session can be inactive while its
	// final step drains.
	Active bool `json:"active"`

	// Transcript is the in-progress utterance text.
	Transcript string `json:"transcript"`

	// LastResponse is the most recent reply text.
	LastResponse string `json:"last_response"`

	// Error is the last surfaced failure message, or empty.
	Error string `json:"error"`

	// Turns is the number of completed user/assistant turns this session.
	Turns int `json:"turns"`
}

// Turn is one completed user-utterance-to-reply cycle.
type Turn struct {
	// ID is a unique turn identifier.
	ID string `json:"id"`

	// User is the committed utterance text.
	User string `json:"user"`

	// Reply is the backend reply text.
	Reply string `json:"reply"`

	// ActionPerformed is true if the backend mutated inventory state.
	ActionPerformed bool `json:"action_performed"`

	// Latency is commit-to-reply wall time.
	Latency time.Duration `json:"latency"`
}
