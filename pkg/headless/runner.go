package headless

import (
	"context"
	"fmt"

	"github.com/killallgit/tripwire/pkg/chat"
	"github.com/killallgit/tripwire/pkg/config"
	"github.com/killallgit/tripwire/pkg/events"
	"github.com/killallgit/tripwire/pkg/logger"
	"github.com/killallgit/tripwire/pkg/resilience"
	"github.com/killallgit/tripwire/pkg/transport"
)

// Runner executes chat turns in headless mode: it feeds the event stream
// through the reducer and mirrors tokens to the console as they arrive.
type Runner struct {
	reducer    *chat.Reducer
	controller *resilience.Controller
	output     *Output
	sessionID  string
}

// NewRunner creates a runner from the global configuration.
func NewRunner() (*Runner, error) {
	settings := config.Get()

	client := transport.NewClient(settings.Server.URL)
	policy := resilience.Policy{
		MaxAttempts: settings.Retry.MaxAttempts,
		BaseDelay:   settings.Retry.BaseDelay,
	}

	session := chat.NewSessionWithID(settings.Chat.SessionID)
	output := NewOutput(settings.Chat.ShowThinking)

	controller := resilience.NewController(resilience.OpenerFor(client), policy)
	controller.OnStateChange = func(s resilience.State) {
		logger.Debug("connectivity state: %s", s)
		if s == resilience.StateReconnecting || s == resilience.StateFailed {
			output.Status(s)
		}
	}

	return &Runner{
		reducer:    chat.NewReducer(session),
		controller: controller,
		output:     output,
		sessionID:  session.ID,
	}, nil
}

// Session exposes the conversation log.
func (r *Runner) Session() *chat.Session {
	return r.reducer.Session()
}

// Run executes a single prompt and blocks until the turn ends. Partial
// content already streamed stays in the session even when the turn fails.
func (r *Runner) Run(ctx context.Context, prompt string) error {
	if prompt == "" {
		return fmt.Errorf("prompt cannot be empty in headless mode")
	}

	r.reducer.AddUserMessage(prompt)

	req := transport.ChatRequest{
		Message:   prompt,
		SessionID: r.sessionID,
	}

	err := r.controller.Run(ctx, req,
		func(ev events.StreamEvent) {
			r.reducer.Apply(ev)
			r.render(ev)
		},
		func() {
			r.output.Newline()
		},
	)
	if err != nil {
		r.output.Error(fmt.Sprintf("connection lost: %v", err))
		return err
	}
	return nil
}

// Disconnect aborts the in-flight turn, if any.
func (r *Runner) Disconnect() {
	r.controller.Disconnect()
}

// render mirrors one event to the console. The reducer already owns the
// canonical message list; this only decides what the live stream looks like.
func (r *Runner) render(ev events.StreamEvent) {
	switch ev.Kind {
	case events.KindThinking:
		r.output.Token(chat.KindThinking, ev.Token)
	case events.KindThinkingEnd:
		r.output.Newline()
	case events.KindResponse:
		r.output.Token(chat.KindAssistantText, ev.Token)
	case events.KindToolCallStart:
		r.output.PhaseLabel(fmt.Sprintf("→ %s", ev.ToolName))
	case events.KindToolResult:
		r.output.Token(chat.KindToolResult, ev.Token)
	case events.KindToolResultEnd:
		r.output.Newline()
	case events.KindAction, events.KindActionInput, events.KindObservation, events.KindFinalAnswerHeader:
		r.output.PhaseLabel(ev.Token)
	case events.KindError:
		r.output.Token(chat.KindError, ev.Token)
	}
}

// RunHeadless executes a single prompt in headless mode. This is the main
// entry point for CLI execution.
func RunHeadless(ctx context.Context, prompt string) error {
	runner, err := NewRunner()
	if err != nil {
		return fmt.Errorf("failed to initialize headless mode: %w", err)
	}
	return runner.Run(ctx, prompt)
}
