package chat

import (
	"github.com/killallgit/tripwire/pkg/events"
)

// Reducer folds the agent's event stream into the session's message list.
//
// The wire protocol carries no correlation ids, so open messages are tracked
// as most-recent-open-of-kind pointers: a delta event always lands on the
// newest open message of the matching kind. Concurrent overlapping tool calls
// are not distinguishable under this protocol.
//
// Apply is single-writer: all mutations of the session log happen here, on
// one goroutine per event.
type Reducer struct {
	session *Session

	// Indexes into session.messages of the open message per kind, -1 when
	// none is open.
	thinkingIdx   int
	assistantIdx  int
	toolCallIdx   int
	toolResultIdx int
}

// NewReducer creates a reducer over the given session.
func NewReducer(session *Session) *Reducer {
	r := &Reducer{session: session}
	r.resetPointers()
	return r
}

// Session returns the session this reducer writes to.
func (r *Reducer) Session() *Session {
	return r.session
}

// AddUserMessage appends the user's input to the log and returns it.
func (r *Reducer) AddUserMessage(content string) Message {
	m := NewUserMessage(content)
	r.session.messages = append(r.session.messages, m)
	return m
}

// AddSystemMessage appends a closed system message, used for connectivity
// notices surfaced to the user.
func (r *Reducer) AddSystemMessage(content string) Message {
	m := NewSystemMessage(content)
	r.session.messages = append(r.session.messages, m)
	return m
}

// Reset clears the session and all open-message state. Any pending ephemeral
// cleanup dies with the log it referenced.
func (r *Reducer) Reset() {
	r.session.Reset()
	r.resetPointers()
}

// Apply folds one event into the message list. Events of unrecognized kind
// are ignored. A delta event with no open target creates the target lazily,
// so a stream resumed mid-phase still lands somewhere visible.
func (r *Reducer) Apply(ev events.StreamEvent) {
	switch ev.Kind {
	case events.KindThinkingStart:
		r.openThinking()

	case events.KindThinking:
		if r.thinkingIdx < 0 {
			r.openThinking()
		}
		r.session.messages[r.thinkingIdx].Content += ev.Token

	case events.KindThinkingEnd:
		r.closeAt(&r.thinkingIdx)
		r.openAssistant()

	case events.KindResponse:
		if r.assistantIdx < 0 {
			r.openAssistant()
		}
		r.session.messages[r.assistantIdx].Content += ev.Token

	case events.KindToolCallStart:
		// A tool phase interrupting the answer before any token arrived means
		// the placeholder opened at thinking_end was premature; discard it so
		// the eventual answer lands after the tool messages.
		r.discardEmptyAssistant()
		r.openToolCall(ev)

	case events.KindToolCall:
		if r.toolCallIdx < 0 {
			r.openToolCall(ev)
		}
		// Tool call deltas carry the full parameters so far, not an
		// increment: replace, don't append.
		m := &r.session.messages[r.toolCallIdx]
		m.Content = ev.Token
		mergeMeta(m, ev)

	case events.KindToolCallEnd:
		r.closeAt(&r.toolCallIdx)

	case events.KindToolResultStart:
		r.discardEmptyAssistant()
		r.openToolResult()

	case events.KindToolResult:
		if r.toolResultIdx < 0 {
			r.openToolResult()
		}
		r.session.messages[r.toolResultIdx].Content += ev.Token

	case events.KindToolResultEnd:
		r.closeAt(&r.toolResultIdx)

	case events.KindAction:
		r.appendClosed(KindAction, ev.Token)

	case events.KindActionInput:
		r.appendClosed(KindActionInput, ev.Token)

	case events.KindObservation:
		r.appendClosed(KindObservation, ev.Token)

	case events.KindFinalAnswerHeader:
		r.appendClosed(KindFinalAnswerHeader, ev.Token)

	case events.KindError:
		if r.assistantIdx >= 0 {
			m := &r.session.messages[r.assistantIdx]
			m.Content += ev.Token
			m.Kind = KindError
		} else {
			r.appendClosed(KindError, ev.Token)
		}

	case events.KindComplete:
		r.closeAt(&r.thinkingIdx)
		r.discardEmptyAssistant()
		r.closeAt(&r.assistantIdx)
		r.closeAt(&r.toolCallIdx)
		r.closeAt(&r.toolResultIdx)
		r.purgeEphemeral()
	}
}

func (r *Reducer) openThinking() {
	m := newMessage(KindThinking)
	m.Ephemeral = true
	m.Streaming = true
	r.session.messages = append(r.session.messages, m)
	r.thinkingIdx = len(r.session.messages) - 1
}

func (r *Reducer) openAssistant() {
	m := newMessage(KindAssistantText)
	m.Streaming = true
	r.session.messages = append(r.session.messages, m)
	r.assistantIdx = len(r.session.messages) - 1
}

func (r *Reducer) openToolCall(ev events.StreamEvent) {
	m := newMessage(KindToolCall)
	m.Streaming = true
	mergeMeta(&m, ev)
	r.session.messages = append(r.session.messages, m)
	r.toolCallIdx = len(r.session.messages) - 1
}

func (r *Reducer) openToolResult() {
	m := newMessage(KindToolResult)
	m.Streaming = true
	r.session.messages = append(r.session.messages, m)
	r.toolResultIdx = len(r.session.messages) - 1
}

func (r *Reducer) appendClosed(kind Kind, content string) {
	m := newMessage(kind)
	m.Content = content
	r.session.messages = append(r.session.messages, m)
}

func (r *Reducer) closeAt(idx *int) {
	if *idx < 0 {
		return
	}
	r.session.messages[*idx].Streaming = false
	*idx = -1
}

// purgeEphemeral removes every ephemeral message. Runs on the terminal
// complete event, after every open message has been closed, so no open
// pointer can survive the compaction.
func (r *Reducer) purgeEphemeral() {
	kept := r.session.messages[:0]
	for _, m := range r.session.messages {
		if !m.Ephemeral {
			kept = append(kept, m)
		}
	}
	r.session.messages = kept
	r.resetPointers()
}

// discardEmptyAssistant drops an open assistant message that never received a
// token. A non-empty streaming assistant message stays open; later response
// tokens keep appending to it.
func (r *Reducer) discardEmptyAssistant() {
	if r.assistantIdx < 0 || r.session.messages[r.assistantIdx].Content != "" {
		return
	}
	r.removeAt(r.assistantIdx)
	r.assistantIdx = -1
}

func (r *Reducer) removeAt(i int) {
	r.session.messages = append(r.session.messages[:i], r.session.messages[i+1:]...)
	for _, idx := range []*int{&r.thinkingIdx, &r.toolCallIdx, &r.toolResultIdx} {
		if *idx > i {
			*idx--
		}
	}
}

func (r *Reducer) resetPointers() {
	r.thinkingIdx = -1
	r.assistantIdx = -1
	r.toolCallIdx = -1
	r.toolResultIdx = -1
}

func mergeMeta(m *Message, ev events.StreamEvent) {
	if ev.ToolName == "" && ev.Parameters == "" {
		return
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	if ev.ToolName != "" {
		m.Metadata[MetaToolName] = ev.ToolName
	}
	if ev.Parameters != "" {
		m.Metadata[MetaParameters] = ev.Parameters
	}
}
