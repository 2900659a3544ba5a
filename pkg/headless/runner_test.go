package headless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/killallgit/tripwire/pkg/chat"
	"github.com/killallgit/tripwire/pkg/resilience"
	"github.com/killallgit/tripwire/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, serverURL string, buf *bytes.Buffer, showThinking bool) *Runner {
	t.Helper()

	client := transport.NewClient(serverURL)
	controller := resilience.NewController(resilience.OpenerFor(client), resilience.DefaultPolicy())
	session := chat.NewSessionWithID("headless-test")

	return &Runner{
		reducer:    chat.NewReducer(session),
		controller: controller,
		output:     NewOutputWithWriter(buf, showThinking),
		sessionID:  session.ID,
	}
}

func streamHandler(t *testing.T, frames []map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, frame := range frames {
			payload, err := json.Marshal(frame)
			require.NoError(t, err)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func TestRunnerRun(t *testing.T) {
	t.Run("should stream a full turn into both console and session", func(t *testing.T) {
		server := httptest.NewServer(streamHandler(t, []map[string]any{
			{"type": "thinking_start", "token": ""},
			{"type": "thinking", "token": "checking forecast"},
			{"type": "thinking_end", "token": ""},
			{"type": "tool_call_start", "token": "", "tool_name": "weather"},
			{"type": "tool_call", "token": `{"city":"Paris"}`, "tool_name": "weather"},
			{"type": "tool_call_end", "token": ""},
			{"type": "tool_result_start", "token": ""},
			{"type": "tool_result", "token": "23C"},
			{"type": "tool_result_end", "token": ""},
			{"type": "response", "token": "It's "},
			{"type": "response", "token": "23C in Paris"},
			{"type": "complete", "token": ""},
		}))
		defer server.Close()

		var buf bytes.Buffer
		runner := newTestRunner(t, server.URL, &buf, true)

		err := runner.Run(context.Background(), "weather in Paris?")
		require.NoError(t, err)

		out := buf.String()
		assert.Contains(t, out, "checking forecast")
		assert.Contains(t, out, "weather")
		assert.Contains(t, out, "23C")
		assert.Contains(t, out, "It's 23C in Paris")

		msgs := runner.Session().Messages()
		kinds := make([]chat.Kind, len(msgs))
		for i, m := range msgs {
			kinds[i] = m.Kind
		}
		// Ephemeral thinking is gone once the turn completes.
		assert.Equal(t, []chat.Kind{
			chat.KindUserText,
			chat.KindToolCall,
			chat.KindToolResult,
			chat.KindAssistantText,
		}, kinds)
		assert.Equal(t, "It's 23C in Paris", msgs[3].Content)
	})

	t.Run("should suppress thinking tokens when disabled", func(t *testing.T) {
		server := httptest.NewServer(streamHandler(t, []map[string]any{
			{"type": "thinking_start", "token": ""},
			{"type": "thinking", "token": "secret reasoning"},
			{"type": "thinking_end", "token": ""},
			{"type": "response", "token": "done"},
			{"type": "complete", "token": ""},
		}))
		defer server.Close()

		var buf bytes.Buffer
		runner := newTestRunner(t, server.URL, &buf, false)

		require.NoError(t, runner.Run(context.Background(), "hi"))
		assert.NotContains(t, buf.String(), "secret reasoning")
		assert.Contains(t, buf.String(), "done")
	})

	t.Run("should reject an empty prompt", func(t *testing.T) {
		var buf bytes.Buffer
		runner := newTestRunner(t, "http://127.0.0.1:1", &buf, true)
		assert.Error(t, runner.Run(context.Background(), ""))
	})

	t.Run("should keep partial content when retries are exhausted", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			flusher := w.(http.Flusher)
			fmt.Fprint(w, "data: {\"type\": \"response\", \"token\": \"partial\"}\n")
			flusher.Flush()
			// Kill the connection mid-stream.
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
		}))
		defer server.Close()

		var buf bytes.Buffer
		client := transport.NewClient(server.URL)
		controller := resilience.NewController(resilience.OpenerFor(client), resilience.Policy{MaxAttempts: 1, BaseDelay: 0})
		session := chat.NewSessionWithID("headless-test")
		runner := &Runner{
			reducer:    chat.NewReducer(session),
			controller: controller,
			output:     NewOutputWithWriter(&buf, true),
			sessionID:  session.ID,
		}

		err := runner.Run(context.Background(), "hello")
		require.Error(t, err)
		assert.ErrorIs(t, err, resilience.ErrRetryExhausted)

		last, ok := runner.Session().LastMessage()
		require.True(t, ok)
		assert.Equal(t, chat.KindAssistantText, last.Kind)
		assert.Contains(t, last.Content, "partial")
		assert.Contains(t, buf.String(), "connection lost")
	})
}
