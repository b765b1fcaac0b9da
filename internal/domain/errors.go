package domain

import (
	"errors"
	"fmt"
)

// Error classes shared across the engine.
var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration is returned when a source is missing credentials or an endpoint.
	// It is never retried.
	ErrConfiguration = errors.New("source misconfigured")

	// ErrMalformedPayload is returned when an upstream response cannot be decoded.
	ErrMalformedPayload = errors.New("malformed upstream payload")

	// ErrOutOfOrder is returned by the ledger for an event older than the position's last event.
	ErrOutOfOrder = errors.New("trade event out of order")

	// ErrMalformedEvent is returned by the ledger for an event it cannot apply.
	ErrMalformedEvent = errors.New("malformed trade event")

	// ErrStaleWrite is returned when a cache write lost a race with an invalidation.
	ErrStaleWrite = errors.New("stale cache write discarded")
)

// ValidationError describes an invalid caller-supplied identifier or parameter.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FailureKind classifies why a source failed.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureRateLimited   FailureKind = "rate_limited"
	FailureUpstream      FailureKind = "upstream"
	FailureMalformed     FailureKind = "malformed"
	FailureConfiguration FailureKind = "configuration"
	FailureCanceled      FailureKind = "canceled"
)

// SourceFailure reports that one upstream source could not deliver data.
type SourceFailure struct {
	Source   string      // upstream source name
	Key      string      // request key within a fan-out
	Kind     FailureKind // failure class
	Attempts int         // attempts made before giving up
	Err      error       // last underlying error
}

func (e *SourceFailure) Error() string {
	return fmt.Sprintf("source %s (%s) failed after %d attempt(s): %s: %v",
		e.Source, e.Key, e.Attempts, e.Kind, e.Err)
}

func (e *SourceFailure) Unwrap() error {
	return e.Err
}

// StatusError is an unexpected HTTP status returned by an upstream source.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, body)
}
