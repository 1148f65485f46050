package web

import (
	"fmt"

	"github.com/kiranaai/go-kirana/pkg/session"
)

// The server doubles as the session's event sink, turning session events
// into dashboard state updates, conversation entries, and log lines.

// StateChanged implements session.EventSink.
func (s *Server) StateChanged(state session.State, reason session.Reason) {
	s.UpdateState(func(v *SessionView) {
		v.State = state.String()
		v.Active = state != session.StateIdle
		if state == session.StateListening {
			v.Transcript = ""
		}
	})
	s.AddLog("state", fmt.Sprintf("%s (%s)", state, reason))
}

// PartialTranscript implements session.EventSink.
func (s *Server) PartialTranscript(text string) {
	s.UpdateState(func(v *SessionView) {
		v.Transcript = text
	})
}

// TurnCompleted implements session.EventSink.
func (s *Server) TurnCompleted(turn session.Turn) {
	s.AddConversation("user", turn.User)
	s.AddConversation("assistant", turn.Reply)
	s.UpdateState(func(v *SessionView) {
		v.LastResponse = turn.Reply
		v.Error = ""
		v.Turns++
	})
	s.AddLog("turn", fmt.Sprintf("%q → %q (%dms)", turn.User, turn.Reply, turn.Latency.Milliseconds()))
}

// SessionError implements session.EventSink.
func (s *Server) SessionError(code session.ErrorCode, detail string) {
	s.UpdateState(func(v *SessionView) {
		v.Error = fmt.Sprintf("%s: %s", code, detail)
	})
	s.AddLog("error", fmt.Sprintf("%s: %s", code, detail))
}

var _ session.EventSink = (*Server)(nil)
