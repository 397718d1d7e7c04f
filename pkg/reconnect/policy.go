// Package reconnect supervises the assistant connection: connect timeouts,
// exponential backoff with a terminal ceiling, and keepalive pings.
package reconnect

import (
	"errors"
	"time"
)

// Sentinel errors for the reconnect package.
var (
	// ErrFailedPermanently indicates the attempt ceiling was reached.
	ErrFailedPermanently = errors.New("reconnect: connection failed permanently")

	// ErrConnectTimeout indicates an attempt did not open in time.
	ErrConnectTimeout = errors.New("reconnect: connect timeout")

	// ErrKeepaliveTimeout indicates the peer stopped answering pings.
	ErrKeepaliveTimeout = errors.New("reconnect: keepalive timeout")
)

// Policy holds the supervision timings.
type Policy struct {
	// BaseDelay is the first backoff delay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// MaxAttempts is how many consecutive failures are retried. The next
	// failure is terminal.
	MaxAttempts int

	// ConnectTimeout bounds one connection attempt.
	ConnectTimeout time.Duration

	// PingInterval is the keepalive period.
	PingInterval time.Duration

	// DeadReconnectDelay is the fixed delay before reconnecting a dead
	// connection, used instead of the backoff delay.
	DeadReconnectDelay time.Duration
}

// DefaultPolicy returns the default supervision timings.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:          time.Second,
		MaxDelay:           30 * time.Second,
		MaxAttempts:        5,
		ConnectTimeout:     20 * time.Second,
		PingInterval:       15 * time.Second,
		DeadReconnectDelay: time.Second,
	}
}

// NextDelay returns min(MaxDelay, 2^attempt * BaseDelay).
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if delay >= p.MaxDelay {
			break
		}
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// WarnAfter is the silence after which a missing pong is logged.
func (p Policy) WarnAfter() time.Duration {
	return 2 * p.PingInterval
}

// DeadAfter is the silence after which the connection is considered dead.
func (p Policy) DeadAfter() time.Duration {
	return 3 * p.PingInterval
}
