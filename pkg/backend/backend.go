// Package backend provides the client for the KiranaAI conversational
// backend.
//
// The backend answers natural-language questions about the shop (stock,
// sales, reorder suggestions) given the current message and a bounded
// conversation history. It may also perform an inventory action as a side
// effect and reports that in the reply.
package backend

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is the shopkeeper.
	RoleUser Role = "user"

	// RoleAssistant is the backend assistant.
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history sent with each request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Reply is the backend's answer to a chat message.
type Reply struct {
	// Text is the natural-language reply to speak back.
	Text string

	// ActionPerformed is true if the backend mutated inventory state
	// while answering (e.g. recorded a sale).
	ActionPerformed bool
}

// Conversation is the interface for conversational backends.
type Conversation interface {
	// Send submits a message with its history and returns the reply.
	// The context carries the caller's deadline; implementations must not
	// outlive it.
	Send(ctx context.Context, message string, history []Message, language string) (Reply, error)
}
