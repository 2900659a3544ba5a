package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a conversation log entry.
type Kind string

const (
	KindUserText          Kind = "user_text"
	KindAssistantText     Kind = "assistant_text"
	KindThinking          Kind = "thinking"
	KindToolCall          Kind = "tool_call"
	KindToolResult        Kind = "tool_result"
	KindAction            Kind = "action"
	KindActionInput       Kind = "action_input"
	KindObservation       Kind = "observation"
	KindFinalAnswerHeader Kind = "final_answer_header"
	KindError             Kind = "error"
	KindSystem            Kind = "system"
)

// MetaToolName is the metadata key carrying the invoked tool's name.
const MetaToolName = "tool_name"

// MetaParameters is the metadata key carrying the tool call's raw parameters.
const MetaParameters = "parameters"

// Message is one entry in the conversation log. Content is append-only while
// Streaming is true. Ephemeral messages are display-only and are purged when
// their turn completes. Messages are mutated exclusively by the Reducer.
type Message struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
	Ephemeral bool              `json:"ephemeral,omitempty"`
	Streaming bool              `json:"streaming,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func newMessage(kind Kind) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a closed user message with trimmed content.
func NewUserMessage(content string) Message {
	m := newMessage(KindUserText)
	m.Content = strings.TrimSpace(content)
	return m
}

// NewSystemMessage creates a closed system message.
func NewSystemMessage(content string) Message {
	m := newMessage(KindSystem)
	m.Content = content
	return m
}

// NewErrorMessage creates a closed error message.
func NewErrorMessage(content string) Message {
	m := newMessage(KindError)
	m.Content = content
	return m
}

func (m Message) IsUser() bool {
	return m.Kind == KindUserText
}

func (m Message) IsAssistant() bool {
	return m.Kind == KindAssistantText
}

func (m Message) IsThinking() bool {
	return m.Kind == KindThinking
}

func (m Message) IsError() bool {
	return m.Kind == KindError
}

func (m Message) IsTool() bool {
	return m.Kind == KindToolCall || m.Kind == KindToolResult
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// ToolName returns the tool name recorded on a tool call message.
func (m Message) ToolName() string {
	return m.Metadata[MetaToolName]
}
