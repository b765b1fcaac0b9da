package orchestrator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"onchain-analytics/internal/domain"
)

// RetryPolicy bounds how often and how fast a failing source is retried.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on any single delay
	Multiplier  float64       // growth factor between delays
}

// DefaultRetryPolicy returns 3 attempts with 250ms exponential backoff capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(def.MaxDelay, p.BaseDelay)
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(delay, p.MaxDelay)
}

// retryable is implemented by errors that know whether a retry can help.
type retryable interface {
	Retryable() bool
}

// Classify reports whether err is worth retrying and which failure kind it represents.
// Rate limiting, timeouts, 5xx responses and transport errors are retryable.
// Configuration errors, malformed payloads, cancellation and other 4xx responses are not.
func Classify(err error) (bool, domain.FailureKind) {
	if err == nil {
		return false, ""
	}

	if errors.Is(err, domain.ErrConfiguration) {
		return false, domain.FailureConfiguration
	}
	if errors.Is(err, domain.ErrMalformedPayload) {
		return false, domain.FailureMalformed
	}
	if errors.Is(err, context.Canceled) {
		return false, domain.FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, domain.FailureTimeout
	}

	var statusErr *domain.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusTooManyRequests:
			return true, domain.FailureRateLimited
		case statusErr.Code == http.StatusRequestTimeout:
			return true, domain.FailureTimeout
		case statusErr.Code >= 500:
			return true, domain.FailureUpstream
		default:
			return false, domain.FailureUpstream
		}
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable(), domain.FailureUpstream
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true, domain.FailureTimeout
	}

	return true, domain.FailureUpstream
}
