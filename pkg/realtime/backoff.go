package realtime

import "time"

const (
	// DefaultBaseDelay is the backoff base unit.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxAttempts bounds automatic reconnection.
	DefaultMaxAttempts = 5
)

// BackoffPolicy computes reconnect delays. It is a pure value so the policy
// can be tested without sockets or timers.
type BackoffPolicy struct {
	// BaseDelay is multiplied by 2^attempt.
	BaseDelay time.Duration
	// MaxAttempts is the number of automatic reconnects before giving up.
	MaxAttempts int
}

// DefaultBackoff returns the standard policy: 1s base, 5 attempts.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{BaseDelay: DefaultBaseDelay, MaxAttempts: DefaultMaxAttempts}
}

func (p BackoffPolicy) normalized() BackoffPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Delay returns the wait before reconnect attempt number `attempt`
// (zero-based): 2^attempt times the base delay.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

// ShouldRetry reports whether another automatic reconnect is allowed after
// `attempt` attempts have already been made.
func (p BackoffPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}
