package chat

import (
	"testing"
	"time"

	"github.com/killallgit/tripwire/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(kind events.Kind, token string) events.StreamEvent {
	return events.StreamEvent{Kind: kind, Token: token}
}

func applyAll(r *Reducer, evs []events.StreamEvent) {
	for _, e := range evs {
		r.Apply(e)
	}
}

func TestReducerThinkingLifecycle(t *testing.T) {
	t.Run("should open one ephemeral streaming thinking message", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(ev(events.KindThinkingStart, ""))
		r.Apply(ev(events.KindThinking, "step "))
		r.Apply(ev(events.KindThinking, "one"))

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, KindThinking, msgs[0].Kind)
		assert.Equal(t, "step one", msgs[0].Content)
		assert.True(t, msgs[0].Ephemeral)
		assert.True(t, msgs[0].Streaming)
	})

	t.Run("should close thinking and open assistant text on thinking_end", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(ev(events.KindThinkingStart, ""))
		r.Apply(ev(events.KindThinking, "hmm"))
		r.Apply(ev(events.KindThinkingEnd, ""))

		msgs := r.Session().Messages()
		require.Len(t, msgs, 2)
		assert.False(t, msgs[0].Streaming)
		assert.Equal(t, KindAssistantText, msgs[1].Kind)
		assert.True(t, msgs[1].Streaming)
	})

	t.Run("should create a thinking message lazily for an orphan delta", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(ev(events.KindThinking, "orphan"))

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "orphan", msgs[0].Content)
	})

	t.Run("should purge thinking messages on complete", func(t *testing.T) {
		r := NewReducer(NewSession())

		applyAll(r, []events.StreamEvent{
			ev(events.KindThinkingStart, ""),
			ev(events.KindThinking, "a"),
			ev(events.KindThinkingEnd, ""),
			ev(events.KindResponse, "hi"),
			ev(events.KindComplete, ""),
		})

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, KindAssistantText, msgs[0].Kind)
		assert.Equal(t, "hi", msgs[0].Content)
		assert.False(t, msgs[0].Streaming)
		assert.Empty(t, r.Session().MessagesByKind(KindThinking))
	})
}

func TestReducerResponse(t *testing.T) {
	t.Run("should append response tokens to the open assistant message", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(ev(events.KindResponse, "It's "))
		r.Apply(ev(events.KindResponse, "sunny"))

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "It's sunny", msgs[0].Content)
		assert.True(t, msgs[0].Streaming)
	})

	t.Run("should keep exactly one streaming assistant message per turn", func(t *testing.T) {
		r := NewReducer(NewSession())

		applyAll(r, []events.StreamEvent{
			ev(events.KindThinkingStart, ""),
			ev(events.KindThinkingEnd, ""),
			ev(events.KindResponse, "a"),
			ev(events.KindResponse, "b"),
		})

		streaming := 0
		for _, m := range r.Session().Messages() {
			if m.Kind == KindAssistantText && m.Streaming {
				streaming++
			}
		}
		assert.Equal(t, 1, streaming)
	})

	t.Run("should discard an untouched placeholder when a tool call interrupts", func(t *testing.T) {
		r := NewReducer(NewSession())

		applyAll(r, []events.StreamEvent{
			ev(events.KindThinkingStart, ""),
			ev(events.KindThinkingEnd, ""),
			{Kind: events.KindToolCallStart, ToolName: "WeatherTool"},
			ev(events.KindToolCallEnd, ""),
			ev(events.KindResponse, "after the tool"),
		})

		msgs := r.Session().Messages()
		require.Len(t, msgs, 3)
		assert.Equal(t, KindThinking, msgs[0].Kind)
		assert.Equal(t, KindToolCall, msgs[1].Kind)
		assert.Equal(t, KindAssistantText, msgs[2].Kind)
		assert.Equal(t, "after the tool", msgs[2].Content)
	})

	t.Run("should drop an untouched placeholder on complete", func(t *testing.T) {
		r := NewReducer(NewSession())

		applyAll(r, []events.StreamEvent{
			ev(events.KindThinkingStart, ""),
			ev(events.KindThinking, "only thought, no answer"),
			ev(events.KindThinkingEnd, ""),
			ev(events.KindComplete, ""),
		})

		assert.Zero(t, r.Session().Len())
	})

	t.Run("should close the assistant message on complete", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(ev(events.KindResponse, "done"))
		r.Apply(ev(events.KindComplete, ""))

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.False(t, msgs[0].Streaming)
	})
}

func TestReducerToolEvents(t *testing.T) {
	t.Run("should record tool name metadata on tool_call_start", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(events.StreamEvent{Kind: events.KindToolCallStart, ToolName: "WeatherTool"})

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, KindToolCall, msgs[0].Kind)
		assert.Equal(t, "WeatherTool", msgs[0].ToolName())
	})

	t.Run("should replace tool call content instead of appending", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(events.StreamEvent{Kind: events.KindToolCallStart, ToolName: "WeatherTool"})
		r.Apply(ev(events.KindToolCall, "Par"))
		r.Apply(ev(events.KindToolCall, "Paris"))

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "Paris", msgs[0].Content)
	})

	t.Run("should append tool result tokens", func(t *testing.T) {
		r := NewReducer(NewSession())

		applyAll(r, []events.StreamEvent{
			ev(events.KindToolResultStart, ""),
			ev(events.KindToolResult, "23"),
			ev(events.KindToolResult, "C"),
			ev(events.KindToolResultEnd, ""),
		})

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, KindToolResult, msgs[0].Kind)
		assert.Equal(t, "23C", msgs[0].Content)
		assert.False(t, msgs[0].Streaming)
	})

	t.Run("should pair deltas with the most recently opened message", func(t *testing.T) {
		r := NewReducer(NewSession())

		applyAll(r, []events.StreamEvent{
			{Kind: events.KindToolCallStart, ToolName: "TimeTool"},
			ev(events.KindToolCall, "Tokyo"),
			ev(events.KindToolCallEnd, ""),
			{Kind: events.KindToolCallStart, ToolName: "WeatherTool"},
			ev(events.KindToolCall, "Paris"),
		})

		msgs := r.Session().Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, "Tokyo", msgs[0].Content)
		assert.Equal(t, "Paris", msgs[1].Content)
	})

	t.Run("should create a tool message lazily for an orphan delta", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(events.StreamEvent{Kind: events.KindToolCall, Token: "args", ToolName: "WeatherTool"})

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "args", msgs[0].Content)
		assert.Equal(t, "WeatherTool", msgs[0].ToolName())
	})
}

func TestReducerAnnotations(t *testing.T) {
	t.Run("should append closed messages for ReAct annotations", func(t *testing.T) {
		r := NewReducer(NewSession())

		applyAll(r, []events.StreamEvent{
			ev(events.KindAction, "WeatherTool"),
			ev(events.KindActionInput, "Paris"),
			ev(events.KindObservation, "23C"),
			ev(events.KindFinalAnswerHeader, "Final Answer"),
		})

		msgs := r.Session().Messages()
		require.Len(t, msgs, 4)
		assert.Equal(t, KindAction, msgs[0].Kind)
		assert.Equal(t, KindActionInput, msgs[1].Kind)
		assert.Equal(t, KindObservation, msgs[2].Kind)
		assert.Equal(t, KindFinalAnswerHeader, msgs[3].Kind)
		for _, m := range msgs {
			assert.False(t, m.Streaming)
		}
	})
}

func TestReducerErrors(t *testing.T) {
	t.Run("should reclassify an open assistant message on error", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(ev(events.KindResponse, "partial "))
		r.Apply(ev(events.KindError, "boom"))

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, KindError, msgs[0].Kind)
		assert.Equal(t, "partial boom", msgs[0].Content)
	})

	t.Run("should create a closed error message when nothing is open", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(ev(events.KindError, "boom"))

		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, KindError, msgs[0].Kind)
		assert.False(t, msgs[0].Streaming)
	})

	t.Run("should ignore events of unrecognized kind", func(t *testing.T) {
		r := NewReducer(NewSession())

		r.Apply(events.StreamEvent{Kind: "usage_report", Token: "ignored"})
		assert.Zero(t, r.Session().Len())
	})
}

func TestReducerDeterminism(t *testing.T) {
	sequence := []events.StreamEvent{
		ev(events.KindThinkingStart, ""),
		ev(events.KindThinking, "eval"),
		ev(events.KindThinkingEnd, ""),
		{Kind: events.KindToolCallStart, ToolName: "Weather"},
		ev(events.KindToolCall, "Paris"),
		ev(events.KindToolCallEnd, ""),
		ev(events.KindToolResultStart, ""),
		ev(events.KindToolResult, "23C"),
		ev(events.KindToolResultEnd, ""),
		ev(events.KindResponse, "It's 23C"),
		ev(events.KindComplete, ""),
	}

	t.Run("should reduce the tool scenario to three closed messages", func(t *testing.T) {
		r := NewReducer(NewSession())
		applyAll(r, sequence)

		msgs := r.Session().Messages()
		require.Len(t, msgs, 3)

		assert.Equal(t, KindToolCall, msgs[0].Kind)
		assert.Equal(t, "Paris", msgs[0].Content)
		assert.Equal(t, "Weather", msgs[0].ToolName())
		assert.False(t, msgs[0].Streaming)

		assert.Equal(t, KindToolResult, msgs[1].Kind)
		assert.Equal(t, "23C", msgs[1].Content)
		assert.False(t, msgs[1].Streaming)

		assert.Equal(t, KindAssistantText, msgs[2].Kind)
		assert.Equal(t, "It's 23C", msgs[2].Content)
		assert.False(t, msgs[2].Streaming)

		assert.Empty(t, r.Session().MessagesByKind(KindThinking))
	})

	t.Run("should produce an identical list when replayed from fresh sessions", func(t *testing.T) {
		shape := func() []Message {
			r := NewReducer(NewSession())
			applyAll(r, sequence)
			msgs := r.Session().Messages()
			// IDs and timestamps are per-run; compare the reduced shape.
			for i := range msgs {
				msgs[i].ID = ""
				msgs[i].CreatedAt = time.Time{}
			}
			return msgs
		}

		assert.Equal(t, shape(), shape())
	})
}

func TestReducerSession(t *testing.T) {
	t.Run("should derive activity from user messages", func(t *testing.T) {
		r := NewReducer(NewSession())
		assert.False(t, r.Session().IsActive())

		r.AddUserMessage("hello")
		assert.True(t, r.Session().IsActive())
	})

	t.Run("should clear everything on reset", func(t *testing.T) {
		r := NewReducer(NewSession())
		oldID := r.Session().ID

		r.AddUserMessage("hello")
		r.Apply(ev(events.KindResponse, "there"))
		r.Reset()

		assert.Zero(t, r.Session().Len())
		assert.NotEqual(t, oldID, r.Session().ID)

		// Open-message pointers must not survive the reset.
		r.Apply(ev(events.KindResponse, "fresh"))
		msgs := r.Session().Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "fresh", msgs[0].Content)
	})
}
