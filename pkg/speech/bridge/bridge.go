package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranaai/go-kirana/pkg/speech"
	"github.com/kiranaai/go-kirana/pkg/tts"
)

// helloTimeout bounds how long a freshly connected device may take to
// announce itself.
const helloTimeout = 5 * time.Second

// ErrHelloTimeout indicates the device never sent its hello message.
var ErrHelloTimeout = errors.New("bridge: device did not announce itself")

// textMessage is the websocket text opcode, shared by gorilla/websocket
// and gofiber/websocket.
const textMessage = 1

// Conn is the minimal websocket surface the bridge needs. Both
// *gorilla/websocket.Conn and *gofiber/websocket.Conn satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Bridge relays speech traffic between one connected device and the
// session controller. Create it with New, wait for the device hello with
// Handshake, then hand Capture() and Synthesizer() to the controller.
// Run blocks reading the connection and must be called exactly once.
type Bridge struct {
	conn   Conn
	logger *slog.Logger

	mu        sync.Mutex
	caps      speech.Capabilities
	onPartial func(text string)
	onFinal   func(text string)
	onError   func(err error)
	speakWait chan error
	closed    bool

	hello chan struct{}
	done  chan struct{}
}

// New wraps an accepted websocket connection. The caller keeps ownership
// of the connection's lifecycle via Close.
func New(conn Conn, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		conn:   conn,
		logger: logger.With("component", "bridge"),
		hello:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run reads device messages until the connection drops. It returns the
// read error that ended the loop.
func (b *Bridge) Run() error {
	defer b.closeLocked()

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			b.logger.Info("device disconnected", "error", err)
			return err
		}

		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			b.logger.Warn("malformed device message", "error", err)
			continue
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) dispatch(msg envelope) {
	switch msg.Type {
	case typeHello:
		b.mu.Lock()
		b.caps = speech.Capabilities{
			Runtime:           speech.Runtime(msg.Runtime),
			EmitsFinalResults: msg.EmitsFinal,
			SignalsCompletion: msg.SignalsCompletion,
		}
		b.mu.Unlock()
		select {
		case <-b.hello:
		default:
			close(b.hello)
		}
		b.logger.Info("device attached",
			"runtime", msg.Runtime,
			"emits_final", msg.EmitsFinal,
			"signals_completion", msg.SignalsCompletion,
		)

	case typePartial:
		if fn := b.partialFn(); fn != nil {
			fn(msg.Text)
		}

	case typeFinal:
		if fn := b.finalFn(); fn != nil {
			fn(msg.Text)
		}

	case typeError:
		if fn := b.errorFn(); fn != nil {
			fn(mapDeviceError(msg.Code, msg.Message))
		}

	case typeSpeakDone:
		b.resolveSpeak(nil)

	case typeSpeakError:
		b.resolveSpeak(&speech.SynthesisError{Message: msg.Message})

	default:
		b.logger.Debug("ignoring unknown device message", "type", msg.Type)
	}
}

// Handshake waits for the device hello and returns its capabilities.
func (b *Bridge) Handshake(ctx context.Context) (speech.Capabilities, error) {
	timer := time.NewTimer(helloTimeout)
	defer timer.Stop()

	select {
	case <-b.hello:
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.caps, nil
	case <-b.done:
		return speech.Capabilities{}, speech.ErrNoDevice
	case <-timer.C:
		return speech.Capabilities{}, ErrHelloTimeout
	case <-ctx.Done():
		return speech.Capabilities{}, ctx.Err()
	}
}

// Capabilities returns what the attached device announced.
func (b *Bridge) Capabilities() speech.Capabilities {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caps
}

// Close tears down the connection and fails any in-flight Speak.
func (b *Bridge) Close() error {
	b.closeLocked()
	return b.conn.Close()
}

func (b *Bridge) closeLocked() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	if b.speakWait != nil {
		b.speakWait <- &speech.SynthesisError{Message: "device disconnected"}
		b.speakWait = nil
	}
}

// Capture returns the recognition side of the bridge.
func (b *Bridge) Capture() speech.Capture {
	return captureView{b}
}

// Synthesizer returns the playback side of the bridge.
func (b *Bridge) Synthesizer() speech.Synthesizer {
	return synthView{b}
}

func (b *Bridge) send(msg envelope) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.conn.WriteMessage(textMessage, data); err != nil {
		return fmt.Errorf("bridge: write %s: %w", msg.Type, err)
	}
	return nil
}

func (b *Bridge) startListening(language string) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return speech.ErrNoDevice
	}
	return b.send(envelope{Type: typeListen, Language: language})
}

func (b *Bridge) stopListening() {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	if err := b.send(envelope{Type: typeStopListening}); err != nil {
		b.logger.Warn("stop_listening not delivered", "error", err)
	}
}

// speak sends the reply text and waits for playback to finish. Devices
// that signal completion resolve the wait with speak_done; for the rest
// the wait runs out after the playback duration estimate.
func (b *Bridge) speak(ctx context.Context, text, language string) error {
	wait := make(chan error, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return &speech.SynthesisError{Message: "device disconnected"}
	}
	// Replace any stale wait; its Speak already returned.
	b.speakWait = wait
	caps := b.caps
	b.mu.Unlock()

	if err := b.send(envelope{Type: typeSpeak, Text: text, Language: language}); err != nil {
		b.clearSpeakWait(wait)
		return &speech.SynthesisError{Message: err.Error()}
	}

	if caps.SignalsCompletion {
		select {
		case err := <-wait:
			return err
		case <-ctx.Done():
			b.cancelSpeech()
			b.clearSpeakWait(wait)
			return speech.ErrInterrupted
		case <-b.done:
			return &speech.SynthesisError{Message: "device disconnected"}
		}
	}

	// No completion signal from this runtime; assume playback takes the
	// estimated duration. An early speak_error still cuts the wait short.
	timer := time.NewTimer(tts.EstimateSpeechDuration(text))
	defer timer.Stop()
	select {
	case err := <-wait:
		return err
	case <-timer.C:
		b.clearSpeakWait(wait)
		return nil
	case <-ctx.Done():
		b.cancelSpeech()
		b.clearSpeakWait(wait)
		return speech.ErrInterrupted
	case <-b.done:
		return &speech.SynthesisError{Message: "device disconnected"}
	}
}

// cancelSpeech tells the device to cut playback and resolves the wait.
func (b *Bridge) cancelSpeech() {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	if err := b.send(envelope{Type: typeCancelSpeech}); err != nil {
		b.logger.Warn("cancel_speech not delivered", "error", err)
	}
	b.resolveSpeak(speech.ErrInterrupted)
}

func (b *Bridge) resolveSpeak(err error) {
	b.mu.Lock()
	wait := b.speakWait
	b.speakWait = nil
	b.mu.Unlock()
	if wait != nil {
		wait <- err
	}
}

func (b *Bridge) clearSpeakWait(wait chan error) {
	b.mu.Lock()
	if b.speakWait == wait {
		b.speakWait = nil
	}
	b.mu.Unlock()
}

func (b *Bridge) partialFn() func(string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.onPartial
}

func (b *Bridge) finalFn() func(string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.onFinal
}

func (b *Bridge) errorFn() func(error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.onError
}

// mapDeviceError converts Web Speech API and mobile recognizer error
// codes to the speech package's error types.
func mapDeviceError(code, message string) error {
	switch code {
	case "not-allowed", "service-not-allowed", "permission-denied":
		return speech.ErrPermissionDenied
	case "audio-capture", "no-device":
		return speech.ErrNoDevice
	case "unsupported":
		return speech.ErrUnsupportedRuntime
	default:
		return &speech.RecognitionError{Code: code, Message: message}
	}
}

// captureView exposes the bridge as a speech.Capture.
type captureView struct{ b *Bridge }

func (v captureView) Start(language string) error { return v.b.startListening(language) }
func (v captureView) Stop()                       { v.b.stopListening() }

func (v captureView) OnPartialResult(fn func(text string)) {
	v.b.mu.Lock()
	defer v.b.mu.Unlock()
	v.b.onPartial = fn
}

func (v captureView) OnFinalResult(fn func(text string)) {
	v.b.mu.Lock()
	defer v.b.mu.Unlock()
	v.b.onFinal = fn
}

func (v captureView) OnError(fn func(err error)) {
	v.b.mu.Lock()
	defer v.b.mu.Unlock()
	v.b.onError = fn
}

// synthView exposes the bridge as a speech.Synthesizer.
type synthView struct{ b *Bridge }

func (v synthView) Speak(ctx context.Context, text, language string) error {
	return v.b.speak(ctx, text, language)
}

func (v synthView) Stop() { v.b.cancelSpeech() }

var (
	_ speech.Capture     = captureView{}
	_ speech.Synthesizer = synthView{}
)
