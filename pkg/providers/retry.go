package providers

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds retries of provider round-trips with exponential
// backoff. Exhausted retries surface the last error to the caller; the turn
// is never silently truncated.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Factor      float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		Factor:      2.0,
	}
}

// Do runs fn up to MaxAttempts times, backing off between attempts.
// Non-retryable errors and context cancellation abort immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := p.BaseBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("provider round-trip failed, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		factor := p.Factor
		if factor <= 1 {
			factor = 2.0
		}
		backoff = time.Duration(float64(backoff) * factor)
	}

	return errors.Wrapf(lastErr, "provider round-trip failed after %d attempts", attempts)
}

// IsRetryable reports whether an error looks like a transient transport
// failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"unexpected eof",
		"timeout",
		"temporarily unavailable",
		"429",
		"500",
		"502",
		"503",
		"504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
