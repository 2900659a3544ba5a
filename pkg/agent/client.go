package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/killallgit/tripwire/pkg/logger"
)

// Client talks to the agent backend's plain REST surface: health, provider
// management and server-side memory. These calls are orthogonal to the
// streaming core; failures here are non-fatal to a conversation.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a REST client for the agent backend.
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 30*time.Second)
}

// NewClientWithTimeout creates a REST client with a custom request timeout.
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Health checks whether the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.getJSON(ctx, fmt.Sprintf("%s/health", c.baseURL), &status); err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return &status, nil
}

// Query sends a non-streaming chat request and returns the full response in
// one body.
func (c *Client) Query(ctx context.Context, message, sessionID string) (*ChatResult, error) {
	body, err := json.Marshal(map[string]any{
		"message":    message,
		"session_id": sessionID,
		"stream":     false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/chat", c.baseURL), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result ChatResult
	if err := c.doJSON(req, &result); err != nil {
		return nil, fmt.Errorf("chat query failed: %w", err)
	}
	return &result, nil
}

// MemoryStatus fetches the server-side history summary for a session.
func (c *Client) MemoryStatus(ctx context.Context, sessionID string) (*MemoryStatus, error) {
	var status MemoryStatus
	url := fmt.Sprintf("%s/api/v1/memory/status/%s", c.baseURL, sessionID)
	if err := c.getJSON(ctx, url, &status); err != nil {
		return nil, fmt.Errorf("memory status failed: %w", err)
	}
	return &status, nil
}

// ClearMemory drops the server-side history for a session.
func (c *Client) ClearMemory(ctx context.Context, sessionID string) error {
	url := fmt.Sprintf("%s/api/v1/memory/clear/%s", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return fmt.Errorf("memory clear failed: %w", err)
	}
	logger.WithComponent("agent").Debug("memory cleared", "session_id", sessionID, "message", resp.Message)
	return nil
}

// Providers lists the backend's LLM providers and their configuration state.
func (c *Client) Providers(ctx context.Context) (*Providers, error) {
	var providers Providers
	url := fmt.Sprintf("%s/api/v1/llm/providers", c.baseURL)
	if err := c.getJSON(ctx, url, &providers); err != nil {
		return nil, fmt.Errorf("providers request failed: %w", err)
	}
	return &providers, nil
}

// SwitchProvider asks the backend to switch its active LLM provider. Callers
// must not switch while a turn is active; the session's IsActive flag guards
// that on the client side.
func (c *Client) SwitchProvider(ctx context.Context, provider string) error {
	body, err := json.Marshal(map[string]string{"provider": provider})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/llm/switch", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Message  string `json:"message"`
		Provider string `json:"provider"`
	}
	if err := c.doJSON(req, &resp); err != nil {
		return fmt.Errorf("provider switch failed: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var errorResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errorResp) == nil && errorResp.Error != "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errorResp.Error)
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
}
