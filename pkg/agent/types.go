package agent

// HealthStatus is the backend's health check payload.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ChatResult is the non-streaming chat response body.
type ChatResult struct {
	Response    string `json:"response"`
	Success     bool   `json:"success"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	RateLimited bool   `json:"rate_limited"`
	Error       string `json:"error,omitempty"`
}

// MemoryStatus describes the server-side history for one session.
type MemoryStatus struct {
	SessionID    string          `json:"session_id"`
	MessageCount int             `json:"message_count"`
	Messages     []MemoryMessage `json:"messages"`
}

// MemoryMessage is one (possibly truncated) history entry.
type MemoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Providers describes the backend's available LLM providers.
type Providers struct {
	AvailableProviders  []string        `json:"available_providers"`
	ConfiguredProviders map[string]bool `json:"configured_providers"`
	CurrentProvider     string          `json:"current_provider"`
	DefaultProvider     string          `json:"default_provider"`
}
