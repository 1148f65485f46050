// Package speech defines the device speech capabilities consumed by the
// voice session controller.
//
// The controller talks to two abstract capabilities: a Capture that turns
// microphone audio into interim/final text, and a Synthesizer that renders
// reply text as audible speech. Concrete bindings differ per host runtime
// (native mobile speech services vs. the browser Web Speech API) and are
// selected once at startup; after that the controller never branches on
// runtime. See pkg/speech/bridge for the WebSocket-backed binding and the
// Mock types in this package for tests.
package speech

import "context"

// Runtime identifies the host speech runtime.
type Runtime string

const (
	// RuntimeNative is a mobile platform speech service. Typically emits
	// final results and signals synthesis completion.
	RuntimeNative Runtime = "native"

	// RuntimeWebSpeech is the browser Web Speech API. Partial results only
	// on some engines, and synthesis completion events are unreliable.
	RuntimeWebSpeech Runtime = "webspeech"
)

// Capabilities describes what a concrete speech binding can do.
// The session controller uses this only indirectly: bindings that lack a
// signal are expected to synthesize it (e.g. a completion event derived
// from a playback duration estimate).
type Capabilities struct {
	// Runtime identifies the host runtime.
	Runtime Runtime

	// EmitsFinalResults is true if the recognizer reports an authoritative
	// end-of-utterance transcription.
	EmitsFinalResults bool

	// SignalsCompletion is true if synthesis playback reports completion.
	SignalsCompletion bool
}

// Capture converts microphone audio to streaming text results.
//
// Start acquires the microphone and begins recognition for the given
// language tag. Callbacks fire on the binding's own goroutine; consumers
// must not block in them. Stop is idempotent and releases the microphone.
type Capture interface {
	Start(language string) error
	Stop()

	// OnPartialResult is called with each interim transcription. The text
	// is the current best effort for the whole utterance, not a delta.
	OnPartialResult(fn func(text string))

	// OnFinalResult is called with an authoritative end-of-utterance
	// transcription. Not all runtimes emit it.
	OnFinalResult(fn func(text string))

	// OnError is called when recognition fails. Fatal errors
	// (ErrPermissionDenied, ErrUnsupportedRuntime) end the session;
	// everything else restarts listening.
	OnError(fn func(err error))
}

// Synthesizer renders text as audible speech.
//
// Speak blocks until playback completes, the context is cancelled, or
// Stop is called. Bindings whose runtime cannot signal completion return
// after an estimated playback duration instead. Stop cancels in-flight
// playback and is idempotent.
type Synthesizer interface {
	Speak(ctx context.Context, text, language string) error
	Stop()
}
