package chat

import (
	"github.com/google/uuid"
)

// Session holds the ordered conversation log for one session id. The message
// list has a single writer (the Reducer's apply path); everything else reads
// copies.
type Session struct {
	ID       string
	messages []Message
}

// NewSession creates an empty session with a fresh id.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// NewSessionWithID creates an empty session with a caller-chosen id, used
// when resuming a server-side conversation.
func NewSessionWithID(id string) *Session {
	if id == "" {
		return NewSession()
	}
	return &Session{ID: id}
}

// Messages returns a copy of the conversation log.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log.
func (s *Session) Len() int {
	return len(s.messages)
}

// LastMessage returns the most recent message, if any.
func (s *Session) LastMessage() (Message, bool) {
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// MessagesByKind returns every message of the given kind, in order.
func (s *Session) MessagesByKind(kind Kind) []Message {
	var out []Message
	for _, m := range s.messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// IsActive reports whether a conversation has started. It is derived: true
// iff any user message exists. Collaborators use it to refuse provider
// switching mid-conversation.
func (s *Session) IsActive() bool {
	for _, m := range s.messages {
		if m.IsUser() {
			return true
		}
	}
	return false
}

// Reset clears the log and assigns a fresh session id.
func (s *Session) Reset() {
	s.ID = uuid.NewString()
	s.messages = nil
}
