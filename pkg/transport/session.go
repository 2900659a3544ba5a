package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/killallgit/tripwire/pkg/events"
	"github.com/killallgit/tripwire/pkg/logger"
	"github.com/killallgit/tripwire/pkg/sse"
)

// ChatRequest is the body sent to the streaming chat endpoint.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Stream    bool   `json:"stream"`
}

// Callbacks receive the lifecycle of one streaming session. OnEvent fires
// once per decoded event in arrival order. OnFault fires at most once, for
// I/O failures only; cancellation is not a fault. OnClosed fires once on
// graceful end of body. After Cancel returns, none of them fire again.
type Callbacks struct {
	OnEvent  func(events.StreamEvent)
	OnFault  func(error)
	OnClosed func()
}

// Client issues streaming chat requests against one backend endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a transport client for the given base URL. The underlying
// http.Client carries no overall timeout: a streaming body stays open for as
// long as the agent keeps producing, bounded only by the request context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Session is one open streaming request. It owns a single reader goroutine
// that feeds the frame decoder and dispatches callbacks.
type Session struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool

	done chan struct{}
}

// Open issues the streaming request. A connection failure or a non-success
// status is returned synchronously before any body is read; the caller treats
// it as a fault. On success the body is consumed on a background goroutine
// and delivered through cb.
func (c *Client) Open(ctx context.Context, req ChatRequest, cb Callbacks) (*Session, error) {
	req.Stream = true

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)

	url := fmt.Sprintf("%s/chat", c.baseURL)
	httpReq, err := http.NewRequestWithContext(sctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := readErrorResponse(resp)
		resp.Body.Close()
		cancel()
		return nil, err
	}

	s := &Session{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.read(resp.Body, cb)

	return s, nil
}

// Cancel stops the session. Any outstanding body read returns promptly, and
// no callback fires after the in-flight dispatch (if any) unwinds. Cancelling
// twice is harmless.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.cancel()
}

// Done is closed when the reader goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) read(body io.ReadCloser, cb Callbacks) {
	defer close(s.done)
	defer body.Close()

	log := logger.WithComponent("transport")

	dec := sse.NewDecoder(func(line []byte, err error) {
		log.Debug("dropping malformed frame", "error", err, "line", string(line))
	})

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				if !s.dispatchEvent(cb, ev) {
					return
				}
			}
		}
		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			// Graceful end of body: salvage a trailing frame, then close.
			for _, ev := range dec.Flush() {
				if !s.dispatchEvent(cb, ev) {
					return
				}
			}
			s.dispatchClosed(cb)
			return
		}

		// Reads unblocked by Cancel surface as context errors; those are
		// not faults and stay silent.
		s.dispatchFault(cb, fmt.Errorf("stream read failed: %w", err))
		return
	}
}

// dispatchEvent delivers one event unless the session was cancelled. It
// reports whether the reader should keep going.
func (s *Session) dispatchEvent(cb Callbacks, ev events.StreamEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false
	}
	if cb.OnEvent != nil {
		cb.OnEvent(ev)
	}
	return true
}

func (s *Session) dispatchClosed(cb Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	if cb.OnClosed != nil {
		cb.OnClosed()
	}
}

func (s *Session) dispatchFault(cb Callbacks, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || errors.Is(err, context.Canceled) {
		return
	}
	if cb.OnFault != nil {
		cb.OnFault(err)
	}
}

// readErrorResponse extracts a useful message from a non-success response.
func readErrorResponse(resp *http.Response) error {
	errorBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("request failed with status %d (failed to read error response: %w)", resp.StatusCode, err)
	}

	var errorResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(errorBody, &errorResp) == nil && errorResp.Error != "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errorResp.Error)
	}

	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(errorBody))
}
