package strategy

import (
	"errors"
	"fmt"
	"time"
)

// RetryStrategy decides whether a failed attempt is re-issued and how long
// to wait first. Attempts are numbered from 0.
type RetryStrategy interface {
	ShouldRetry(attempt int, err error) bool
	Delay(attempt int) time.Duration
	MaxAttempts() int
	GetStrategyName() string
}

// StatusError carries the HTTP status of a failed response so strategies
// can classify it
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("status code %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("status code %d", e.StatusCode)
}

// ClientError reports a 4xx response
func (e *StatusError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// ImmediateRetry re-issues every failure, whatever the cause, with no delay
// until MaxRetries retries have been made.
type ImmediateRetry struct {
	MaxRetries int
}

// NewImmediateRetry creates an immediate retry strategy
func NewImmediateRetry(maxRetries int) RetryStrategy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ImmediateRetry{MaxRetries: maxRetries}
}

// ShouldRetry reports whether retries remain; 4xx and timeouts are treated alike
func (s *ImmediateRetry) ShouldRetry(attempt int, err error) bool {
	return err != nil && attempt < s.MaxRetries
}

// Delay is always zero
func (s *ImmediateRetry) Delay(int) time.Duration {
	return 0
}

// MaxAttempts returns the initial attempt plus retries
func (s *ImmediateRetry) MaxAttempts() int {
	return s.MaxRetries + 1
}

// GetStrategyName returns the strategy name
func (s *ImmediateRetry) GetStrategyName() string {
	return "immediate_retry"
}

// LinearBackoff retries transient failures, sleeping (attempt+1)*Step
// between attempts. 4xx responses are not retried.
type LinearBackoff struct {
	Attempts int
	Step     time.Duration
}

// NewLinearBackoff creates a linear backoff strategy
func NewLinearBackoff(attempts int, step time.Duration) RetryStrategy {
	if attempts < 1 {
		attempts = 1
	}
	return &LinearBackoff{Attempts: attempts, Step: step}
}

// ShouldRetry skips client errors and stops after the last attempt
func (s *LinearBackoff) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt >= s.Attempts-1 {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.ClientError() {
		return false
	}
	return true
}

// Delay grows by Step per attempt
func (s *LinearBackoff) Delay(attempt int) time.Duration {
	return time.Duration(attempt+1) * s.Step
}

// MaxAttempts returns the attempt budget
func (s *LinearBackoff) MaxAttempts() int {
	return s.Attempts
}

// GetStrategyName returns the strategy name
func (s *LinearBackoff) GetStrategyName() string {
	return "linear_backoff"
}
