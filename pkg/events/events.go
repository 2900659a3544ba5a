package events

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the type of a streamed agent event.
type Kind string

const (
	KindThinkingStart     Kind = "thinking_start"
	KindThinking          Kind = "thinking"
	KindThinkingEnd       Kind = "thinking_end"
	KindResponse          Kind = "response"
	KindToolCallStart     Kind = "tool_call_start"
	KindToolCall          Kind = "tool_call"
	KindToolCallEnd       Kind = "tool_call_end"
	KindToolResultStart   Kind = "tool_result_start"
	KindToolResult        Kind = "tool_result"
	KindToolResultEnd     Kind = "tool_result_end"
	KindAction            Kind = "action"
	KindActionInput       Kind = "action_input"
	KindObservation       Kind = "observation"
	KindFinalAnswerHeader Kind = "final_answer_header"
	KindError             Kind = "error"
	KindComplete          Kind = "complete"
)

// StreamEvent is one decoded frame from the agent stream. The backend sends
// untyped JSON objects keyed by "type"; everything beyond the known fields is
// kept in Extra so forward-compatible kinds keep their payloads.
type StreamEvent struct {
	Kind       Kind
	Token      string
	ToolName   string
	Parameters string
	Extra      map[string]any
}

// IsTerminal reports whether the event ends the turn.
func (e StreamEvent) IsTerminal() bool {
	return e.Kind == KindComplete
}

// IsControl reports whether the event carries no display content of its own.
func (e StreamEvent) IsControl() bool {
	switch e.Kind {
	case KindThinkingStart, KindThinkingEnd,
		KindToolCallStart, KindToolCallEnd,
		KindToolResultStart, KindToolResultEnd,
		KindComplete:
		return true
	}
	return false
}

// wireEvent mirrors the backend's SSE payload shape.
type wireEvent struct {
	Type       string `json:"type"`
	Token      string `json:"token"`
	ToolName   string `json:"tool_name,omitempty"`
	Parameters string `json:"parameters,omitempty"`
}

// Parse decodes one frame payload into a StreamEvent. The payload must be a
// JSON object with at least a "type" field.
func Parse(payload []byte) (StreamEvent, error) {
	var wire wireEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		return StreamEvent{}, fmt.Errorf("failed to parse event payload: %w", err)
	}
	if wire.Type == "" {
		return StreamEvent{}, fmt.Errorf("event payload missing type field")
	}

	ev := StreamEvent{
		Kind:       Kind(wire.Type),
		Token:      wire.Token,
		ToolName:   wire.ToolName,
		Parameters: wire.Parameters,
	}

	// Keep any additional fields for kinds this client does not know yet.
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err == nil {
		delete(raw, "type")
		delete(raw, "token")
		delete(raw, "tool_name")
		delete(raw, "parameters")
		if len(raw) > 0 {
			ev.Extra = raw
		}
	}

	return ev, nil
}
