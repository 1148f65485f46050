package backend

import (
	"context"
	"sync"
)

// SendCall records one Send invocation for assertions.
type SendCall struct {
	Message  string
	History  []Message
	Language string
}

// Mock is a mock implementation of Conversation for testing.
type Mock struct {
	mu sync.Mutex

	// Configurable behavior. SendFunc wins if set; otherwise Reply/Err
	// are returned as-is.
	SendFunc func(ctx context.Context, message string, history []Message, language string) (Reply, error)
	Reply    Reply
	Err      error

	// Captured calls for assertions
	Calls []SendCall
}

// NewMock creates a new Mock backend.
func NewMock() *Mock {
	return &Mock{}
}

// Send implements Conversation.
func (m *Mock) Send(ctx context.Context, message string, history []Message, language string) (Reply, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, SendCall{
		Message:  message,
		History:  append([]Message{}, history...),
		Language: language,
	})
	fn := m.SendFunc
	reply, err := m.Reply, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, message, history, language)
	}
	return reply, err
}

// CallCount returns the number of Send invocations.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent Send invocation, or false if none.
func (m *Mock) LastCall() (SendCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return SendCall{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}

// Ensure Mock implements Conversation.
var _ Conversation = (*Mock)(nil)
