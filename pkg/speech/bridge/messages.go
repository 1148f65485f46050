// Package bridge binds a remote speech device to the session controller
// over a WebSocket.
//
// The device is whatever runs next to the shopkeeper's microphone and
// speaker: the mobile app using native platform speech services, or a
// browser tab using the Web Speech API. The device connects, announces
// its runtime and capabilities in a hello message, and from then on the
// bridge relays recognition results upstream and speech commands
// downstream. One device per bridge; the server side never touches audio
// hardware.
package bridge

// Message types sent by the device.
const (
	typeHello      = "hello"
	typePartial    = "partial"
	typeFinal      = "final"
	typeError      = "error"
	typeSpeakDone  = "speak_done"
	typeSpeakError = "speak_error"
)

// Message types sent to the device.
const (
	typeListen        = "listen"
	typeStopListening = "stop_listening"
	typeSpeak         = "speak"
	typeCancelSpeech  = "cancel_speech"
)

// envelope is the single wire frame for both directions. Unused fields
// are omitted per message type.
type envelope struct {
	Type string `json:"type"`

	// hello
	Runtime           string `json:"runtime,omitempty"`
	EmitsFinal        bool   `json:"emits_final,omitempty"`
	SignalsCompletion bool   `json:"signals_completion,omitempty"`

	// partial, final, speak
	Text string `json:"text,omitempty"`

	// listen, speak
	Language string `json:"language,omitempty"`

	// error, speak_error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
