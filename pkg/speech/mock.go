package speech

import (
	"context"
	"sync"
)

// MockCapture is a mock implementation of Capture for testing.
type MockCapture struct {
	mu sync.RWMutex

	// State
	running  bool
	language string

	// Callbacks
	onPartial func(text string)
	onFinal   func(text string)
	onError   func(err error)

	// Configurable behavior
	StartFunc func(language string) error

	// Captured calls for assertions
	StartCalls int
	StopCalls  int
	Languages  []string
}

// NewMockCapture creates a new MockCapture.
func NewMockCapture() *MockCapture {
	return &MockCapture{}
}

// Start implements Capture.
func (m *MockCapture) Start(language string) error {
	m.mu.Lock()
	m.StartCalls++
	m.Languages = append(m.Languages, language)
	fn := m.StartFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(language)
	}

	m.mu.Lock()
	m.running = true
	m.language = language
	m.mu.Unlock()
	return nil
}

// Stop implements Capture.
func (m *MockCapture) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	m.running = false
}

// Running reports whether capture is active.
func (m *MockCapture) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// OnPartialResult implements Capture.
func (m *MockCapture) OnPartialResult(fn func(text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPartial = fn
}

// OnFinalResult implements Capture.
func (m *MockCapture) OnFinalResult(fn func(text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinal = fn
}

// OnError implements Capture.
func (m *MockCapture) OnError(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// StartCount returns how many times Start has been called.
func (m *MockCapture) StartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.StartCalls
}

// StopCount returns how many times Stop has been called.
func (m *MockCapture) StopCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.StopCalls
}

// Test helpers

// SimulatePartial triggers the partial result callback.
func (m *MockCapture) SimulatePartial(text string) {
	m.mu.RLock()
	fn := m.onPartial
	m.mu.RUnlock()
	if fn != nil {
		fn(text)
	}
}

// SimulateFinal triggers the final result callback.
func (m *MockCapture) SimulateFinal(text string) {
	m.mu.RLock()
	fn := m.onFinal
	m.mu.RUnlock()
	if fn != nil {
		fn(text)
	}
}

// SimulateError triggers the error callback.
func (m *MockCapture) SimulateError(err error) {
	m.mu.RLock()
	fn := m.onError
	m.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// MockSynthesizer is a mock implementation of Synthesizer for testing.
//
// By default Speak records the text and returns immediately. Set SpeakFunc
// to override, or Hang to make Speak block until Stop or context
// cancellation (for watchdog tests).
type MockSynthesizer struct {
	mu sync.Mutex

	// Configurable behavior
	SpeakFunc func(ctx context.Context, text, language string) error
	Hang      bool

	// Captured calls for assertions
	Spoken    []string
	StopCalls int

	release chan struct{}
}

// NewMockSynthesizer creates a new MockSynthesizer.
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{release: make(chan struct{})}
}

// Speak implements Synthesizer.
func (m *MockSynthesizer) Speak(ctx context.Context, text, language string) error {
	m.mu.Lock()
	m.Spoken = append(m.Spoken, text)
	fn := m.SpeakFunc
	hang := m.Hang
	release := m.release
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, language)
	}
	if hang {
		select {
		case <-release:
			return ErrInterrupted
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop implements Synthesizer.
func (m *MockSynthesizer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	select {
	case <-m.release:
	default:
		close(m.release)
	}
	m.release = make(chan struct{})
}

// StopCount returns how many times Stop has been called.
func (m *MockSynthesizer) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopCalls
}

// SpokenTexts returns a copy of all texts passed to Speak.
func (m *MockSynthesizer) SpokenTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.Spoken...)
}

// Ensure mocks implement the capability interfaces.
var (
	_ Capture     = (*MockCapture)(nil)
	_ Synthesizer = (*MockSynthesizer)(nil)
)
