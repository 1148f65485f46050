package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kiranaai/go-kirana/pkg/speech"
)

var upgrader = websocket.Upgrader{}

// testDevice is the remote end of the bridge: a gorilla client speaking
// the device protocol against an httptest server.
type testDevice struct {
	t    *testing.T
	conn *websocket.Conn

	mu       sync.Mutex
	received []envelope
}

// newTestBridge wires a Bridge to a connected fake device.
func newTestBridge(t *testing.T) (*Bridge, *testDevice) {
	t.Helper()

	bridgeCh := make(chan *Bridge, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		b := New(conn, nil)
		bridgeCh <- b
		b.Run()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	dev := &testDevice{t: t, conn: conn}
	go dev.readLoop()

	return <-bridgeCh, dev
}

func (d *testDevice) readLoop() {
	for {
		_, data, err := d.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		d.mu.Lock()
		d.received = append(d.received, msg)
		d.mu.Unlock()
	}
}

func (d *testDevice) send(msg envelope) {
	d.t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		d.t.Fatalf("marshal: %v", err)
	}
	if err := d.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		d.t.Fatalf("device write: %v", err)
	}
}

func (d *testDevice) sendHello(runtime string, emitsFinal, signalsCompletion bool) {
	d.send(envelope{
		Type:              typeHello,
		Runtime:           runtime,
		EmitsFinal:        emitsFinal,
		SignalsCompletion: signalsCompletion,
	})
}

// waitForMessage polls until the device has received a message of the
// given type.
func (d *testDevice) waitForMessage(msgType string) envelope {
	d.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		for _, msg := range d.received {
			if msg.Type == msgType {
				d.mu.Unlock()
				return msg
			}
		}
		d.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	d.t.Fatalf("device never received %q", msgType)
	return envelope{}
}

func TestHandshake(t *testing.T) {
	b, dev := newTestBridge(t)
	dev.sendHello("webspeech", false, false)

	caps, err := b.Handshake(context.Background())
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if caps.Runtime != speech.RuntimeWebSpeech {
		t.Errorf("runtime = %q, want webspeech", caps.Runtime)
	}
	if caps.EmitsFinalResults || caps.SignalsCompletion {
		t.Errorf("unexpected capabilities: %+v", caps)
	}
}

func TestHandshakeDisconnect(t *testing.T) {
	b, dev := newTestBridge(t)
	dev.conn.Close()

	_, err := b.Handshake(context.Background())
	if !errors.Is(err, speech.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}

func TestListenRelaysResults(t *testing.T) {
	b, dev := newTestBridge(t)
	dev.sendHello("native", true, true)
	if _, err := b.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	var mu sync.Mutex
	var partials, finals []string
	capture := b.Capture()
	capture.OnPartialResult(func(text string) {
		mu.Lock()
		partials = append(partials, text)
		mu.Unlock()
	})
	capture.OnFinalResult(func(text string) {
		mu.Lock()
		finals = append(finals, text)
		mu.Unlock()
	})

	if err := capture.Start("hi"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	msg := dev.waitForMessage(typeListen)
	if msg.Language != "hi" {
		t.Errorf("listen language = %q, want hi", msg.Language)
	}

	dev.send(envelope{Type: typePartial, Text: "do kilo"})
	dev.send(envelope{Type: typeFinal, Text: "do kilo chawal"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(finals)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(partials) != 1 || partials[0] != "do kilo" {
		t.Errorf("partials = %v", partials)
	}
	if len(finals) != 1 || finals[0] != "do kilo chawal" {
		t.Errorf("finals = %v", finals)
	}

	capture.Stop()
	dev.waitForMessage(typeStopListening)
}

func TestSpeakWaitsForCompletionSignal(t *testing.T) {
	b, dev := newTestBridge(t)
	dev.sendHello("native", true, true)
	if _, err := b.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	synth := b.Synthesizer()
	result := make(chan error, 1)
	go func() {
		result <- synth.Speak(context.Background(), "aapke paas 12 kilo chawal hai", "hi")
	}()

	msg := dev.waitForMessage(typeSpeak)
	if msg.Text != "aapke paas 12 kilo chawal hai" || msg.Language != "hi" {
		t.Errorf("unexpected speak message: %+v", msg)
	}

	select {
	case err := <-result:
		t.Fatalf("Speak returned before completion signal: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	dev.send(envelope{Type: typeSpeakDone})
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Speak: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak never returned")
	}
}

func TestSpeakFallsBackToEstimate(t *testing.T) {
	b, dev := newTestBridge(t)
	dev.sendHello("webspeech", false, false)
	if _, err := b.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	start := time.Now()
	if err := b.Synthesizer().Speak(context.Background(), "ok", "en"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	elapsed := time.Since(start)

	// Two characters floor at the one-second minimum estimate.
	if elapsed < 900*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("Speak waited %v, want ~1s", elapsed)
	}
	dev.waitForMessage(typeSpeak)
}

func TestSpeakInterrupted(t *testing.T) {
	b, dev := newTestBridge(t)
	dev.sendHello("native", true, true)
	if _, err := b.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	synth := b.Synthesizer()
	result := make(chan error, 1)
	go func() {
		result <- synth.Speak(context.Background(), "a long reply", "en")
	}()
	dev.waitForMessage(typeSpeak)

	synth.Stop()
	select {
	case err := <-result:
		if !errors.Is(err, speech.ErrInterrupted) {
			t.Fatalf("expected ErrInterrupted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak never returned")
	}
	dev.waitForMessage(typeCancelSpeech)
}

func TestSpeakErrorFromDevice(t *testing.T) {
	b, dev := newTestBridge(t)
	dev.sendHello("native", true, true)
	if _, err := b.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- b.Synthesizer().Speak(context.Background(), "hello", "en")
	}()
	dev.waitForMessage(typeSpeak)
	dev.send(envelope{Type: typeSpeakError, Message: "audio output busy"})

	select {
	case err := <-result:
		var synthErr *speech.SynthesisError
		if !errors.As(err, &synthErr) {
			t.Fatalf("expected SynthesisError, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak never returned")
	}
}

func TestDeviceErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"not-allowed", speech.ErrPermissionDenied},
		{"service-not-allowed", speech.ErrPermissionDenied},
		{"audio-capture", speech.ErrNoDevice},
		{"unsupported", speech.ErrUnsupportedRuntime},
	}
	for _, tt := range tests {
		if got := mapDeviceError(tt.code, ""); !errors.Is(got, tt.want) {
			t.Errorf("mapDeviceError(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}

	var recErr *speech.RecognitionError
	got := mapDeviceError("network", "connection lost")
	if !errors.As(got, &recErr) || recErr.Code != "network" {
		t.Errorf("mapDeviceError(network) = %v, want RecognitionError", got)
	}
}

func TestCaptureErrorAfterDisconnect(t *testing.T) {
	b, dev := newTestBridge(t)
	dev.sendHello("webspeech", false, false)
	if _, err := b.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	dev.conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := b.Capture().Start("en"); errors.Is(err, speech.ErrNoDevice) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("Start never reported the lost device")
}
