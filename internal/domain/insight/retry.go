package insight

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a failed analysis call is repeated within one loading phase.
// Backoff doubles from BaseBackoff and is capped at MaxBackoff when set.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// NoRetry performs a single attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// ShouldRetry reports whether another attempt is allowed after attempt (1-based) failed with err.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts {
		return false
	}
	return AsError(err).Retryable()
}

// Backoff returns the delay before attempt+1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseBackoff <= 0 || attempt < 1 {
		return 0
	}
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	delay := p.BaseBackoff * time.Duration(1<<shift)
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
