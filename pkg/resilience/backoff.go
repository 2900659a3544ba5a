package resilience

import "time"

// Policy controls how often a faulted stream is reopened.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches the protocol defaults: three reconnect attempts with
// a one second base delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Delay returns the wait before reconnect attempt N (0-based). The delay
// doubles per attempt: base, base*2, base*4, ...
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}
