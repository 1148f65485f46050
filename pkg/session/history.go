package session

import "github.com/kiranaai/go-kirana/pkg/backend"

// History is the bounded conversation history sent with each backend
// call. Entries are user/assistant pairs, oldest first; when the limit is
// exceeded the oldest pair is evicted. Not safe for concurrent use; the
// session loop is the only writer.
type History struct {
	limit   int
	entries []backend.Message
}

// NewHistory creates a History bounded to limit entries (limit/2 turns).
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// AppendTurn appends a user/assistant pair, evicting the oldest pair
// while over the limit.
func (h *History) AppendTurn(user, assistant string) {
	h.entries = append(h.entries,
		backend.Message{Role: backend.RoleUser, Content: user},
		backend.Message{Role: backend.RoleAssistant, Content: assistant},
	)
	for len(h.entries) > h.limit {
		h.entries = h.entries[2:]
	}
}

// Snapshot returns a copy of the entries, oldest first.
func (h *History) Snapshot() []backend.Message {
	return append([]backend.Message{}, h.entries...)
}

// Len returns the number of entries (always even).
func (h *History) Len() int {
	return len(h.entries)
}

// Clear drops all entries.
func (h *History) Clear() {
	h.entries = nil
}
