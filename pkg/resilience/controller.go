package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/killallgit/tripwire/pkg/events"
	"github.com/killallgit/tripwire/pkg/logger"
	"github.com/killallgit/tripwire/pkg/transport"
)

// ErrRetryExhausted is returned by Run when every reconnect attempt has
// faulted.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// StreamHandle is the cancellable side of an open stream.
type StreamHandle interface {
	Cancel()
}

// StreamOpener opens one streaming session. *transport.Client satisfies it
// through OpenerFor.
type StreamOpener interface {
	Open(ctx context.Context, req transport.ChatRequest, cb transport.Callbacks) (StreamHandle, error)
}

// OpenerFunc adapts a function to StreamOpener.
type OpenerFunc func(ctx context.Context, req transport.ChatRequest, cb transport.Callbacks) (StreamHandle, error)

func (f OpenerFunc) Open(ctx context.Context, req transport.ChatRequest, cb transport.Callbacks) (StreamHandle, error) {
	return f(ctx, req, cb)
}

// OpenerFor wraps a transport client as a StreamOpener.
func OpenerFor(client *transport.Client) StreamOpener {
	return OpenerFunc(func(ctx context.Context, req transport.ChatRequest, cb transport.Callbacks) (StreamHandle, error) {
		return client.Open(ctx, req, cb)
	})
}

// Controller wraps a stream in a reconnect state machine. One logical turn
// uses exactly one active session at a time; when the session faults the
// controller tears it down, waits a doubling backoff and opens a new one
// against the same request. Events already delivered are retained by the
// caller, never replayed.
type Controller struct {
	opener StreamOpener
	policy Policy

	// OnStateChange, when set, is invoked on every state transition. It is
	// advisory and must not block the data path.
	OnStateChange func(State)

	mu        sync.Mutex
	state     State
	attempt   int
	lastError error
	session   StreamHandle
	cancel    context.CancelFunc
	stopped   bool
}

// NewController creates a controller over the given opener.
func NewController(opener StreamOpener, policy Policy) *Controller {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}
	return &Controller{
		opener: opener,
		policy: policy,
		state:  StateDisconnected,
	}
}

// State returns the current connectivity state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the current reconnect attempt counter. It resets to zero
// only on a fully successful stream completion or a new Run.
func (c *Controller) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// LastError returns the most recent transport fault, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Run opens the stream and blocks until the turn ends. onEvent receives every
// decoded event in order, across reconnects. onComplete fires exactly once,
// on graceful completion only. Run returns nil on graceful completion or
// Disconnect, and an ErrRetryExhausted-wrapped error once reconnect attempts
// run out.
func (c *Controller) Run(ctx context.Context, req transport.ChatRequest, onEvent func(events.StreamEvent), onComplete func()) error {
	log := logger.WithComponent("resilience")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.stopped {
		// A Disconnect raced ahead of this run.
		c.stopped = false
		c.mu.Unlock()
		return nil
	}
	c.cancel = cancel
	c.attempt = 0
	c.lastError = nil
	c.mu.Unlock()

	for {
		c.setState(StateConnecting)

		type outcome struct {
			err error // nil means graceful close
		}
		result := make(chan outcome, 1)

		cb := transport.Callbacks{
			OnEvent: onEvent,
			OnFault: func(err error) {
				result <- outcome{err: err}
			},
			OnClosed: func() {
				result <- outcome{}
			},
		}

		session, err := c.opener.Open(runCtx, req, cb)
		if err == nil {
			c.mu.Lock()
			c.session = session
			c.mu.Unlock()

			// The request was accepted; the stream is live.
			c.setState(StateConnected)

			select {
			case out := <-result:
				err = out.err
			case <-runCtx.Done():
				session.Cancel()
				return nil
			}
			session.Cancel()

			if err == nil {
				// Graceful end of stream.
				c.mu.Lock()
				c.attempt = 0
				c.session = nil
				c.mu.Unlock()
				c.setState(StateDisconnected)
				if onComplete != nil {
					onComplete()
				}
				return nil
			}
		}

		// Cancellation is not a fault and never advances the attempt counter.
		if errors.Is(err, context.Canceled) || runCtx.Err() != nil {
			return nil
		}

		c.mu.Lock()
		c.lastError = err
		attempt := c.attempt
		c.mu.Unlock()

		if attempt >= c.policy.MaxAttempts {
			log.Error("giving up on stream", "attempts", attempt, "error", err)
			c.setState(StateFailed)
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		delay := c.policy.Delay(attempt)
		log.Warn("stream fault, scheduling reconnect", "attempt", attempt, "delay", delay, "error", err)

		c.mu.Lock()
		c.attempt++
		c.mu.Unlock()

		c.setState(StateReconnecting)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-runCtx.Done():
			timer.Stop()
			return nil
		}
	}
}

// Disconnect terminates the run from any state. It cancels the active
// session and any pending retry timer; no onEvent fires after the in-flight
// dispatch unwinds. Disconnect is terminal for the current run but the
// controller may be reused for a new one.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	session := c.session
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil {
		session.Cancel()
	}
	c.setState(StateDisconnected)

	c.mu.Lock()
	if cancel != nil {
		// The run was live; it consumes the cancellation itself.
		c.stopped = false
	}
	c.session = nil
	c.cancel = nil
	c.mu.Unlock()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	notify := c.OnStateChange
	c.mu.Unlock()

	if notify != nil {
		notify(s)
	}
}
