// Package orchestrator fans out upstream requests with bounded concurrency,
// per-source timeouts and retries, and isolates each request's failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/observability"
)

// Defaults.
const (
	DefaultMaxInFlight = 8
	DefaultTimeout     = 30 * time.Second
)

// Request is one logical fetch from one upstream source.
type Request struct {
	Key    string // unique within a FetchAll call
	Source string // upstream source name, used for rate limits and metrics

	// Timeout bounds all attempts together. Zero uses the orchestrator default.
	Timeout time.Duration
	// AttemptTimeout bounds a single attempt. Zero uses the orchestrator default.
	AttemptTimeout time.Duration
	// Retry overrides the orchestrator's policy when set.
	Retry *RetryPolicy

	// Do performs one attempt.
	Do func(ctx context.Context) (any, error)
}

// Outcome is the result of one Request: a value or a failure, never both.
type Outcome struct {
	Key      string
	Source   string
	Value    any
	Failure  *domain.SourceFailure
	Attempts int
	Duration time.Duration
}

// OK reports whether the request produced a value.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// Value extracts a typed value from an outcome.
func Value[T any](o Outcome) (T, error) {
	var zero T
	if o.Failure != nil {
		return zero, o.Failure
	}
	v, ok := o.Value.(T)
	if !ok {
		return zero, fmt.Errorf("outcome %s: unexpected value type %T", o.Key, o.Value)
	}
	return v, nil
}

// Options configures an Orchestrator.
type Options struct {
	// MaxInFlight bounds outstanding upstream requests across all callers.
	MaxInFlight int
	// Timeout is the default per-request deadline.
	Timeout time.Duration
	// AttemptTimeout is the default per-attempt deadline. Zero means none.
	AttemptTimeout time.Duration
	// Retry is the default retry policy.
	Retry RetryPolicy
	// RateLimits caps requests per second per source. Sources not listed are unlimited.
	RateLimits map[string]rate.Limit
	// Burst is the token bucket size for every rate-limited source. Zero means 1.
	Burst int

	Logger *zap.Logger
}

// Orchestrator executes requests against upstream sources.
type Orchestrator struct {
	sem         *semaphore.Weighted
	maxInFlight int
	timeout     time.Duration
	perAttempt  time.Duration
	retry       RetryPolicy
	limiters    map[string]*rate.Limiter
	logger      *zap.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limiters := make(map[string]*rate.Limiter, len(opts.RateLimits))
	for source, limit := range opts.RateLimits {
		if limit > 0 {
			limiters[source] = rate.NewLimiter(limit, burst)
		}
	}

	return &Orchestrator{
		sem:         semaphore.NewWeighted(int64(maxInFlight)),
		maxInFlight: maxInFlight,
		timeout:     timeout,
		perAttempt:  opts.AttemptTimeout,
		retry:       opts.Retry.normalized(),
		limiters:    limiters,
		logger:      logger.With(zap.String("component", "orchestrator")),
	}
}

// MaxInFlight returns the concurrency bound.
func (o *Orchestrator) MaxInFlight() int {
	return o.maxInFlight
}

// FetchAll runs every request concurrently and returns one outcome per key.
// A failing request never cancels its siblings. Requests with a duplicate key
// are skipped; the first one wins.
func (o *Orchestrator) FetchAll(ctx context.Context, reqs []Request) map[string]Outcome {
	results := make(map[string]Outcome, len(reqs))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	seen := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		if _, dup := seen[req.Key]; dup {
			o.logger.Warn("duplicate request key skipped", zap.String("key", req.Key))
			continue
		}
		seen[req.Key] = struct{}{}

		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			out := o.Fetch(ctx, req)
			mu.Lock()
			results[req.Key] = out
			mu.Unlock()
		}(req)
	}

	wg.Wait()
	return results
}

// Fetch runs one request with its timeout and retry policy.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) Outcome {
	start := time.Now()
	out := Outcome{Key: req.Key, Source: req.Source}

	if req.Do == nil {
		out.Failure = &domain.SourceFailure{
			Source: req.Source, Key: req.Key, Kind: domain.FailureConfiguration,
			Err: fmt.Errorf("%w: no fetch function", domain.ErrConfiguration),
		}
		return out
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}
	policy := o.retry
	if req.Retry != nil {
		policy = req.Retry.normalized()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		value, err := o.attempt(ctx, req)
		if err == nil {
			out.Value = value
			out.Duration = time.Since(start)
			observability.RecordFetchOutcome(req.Source, "ok", out.Duration)
			return out
		}

		retry, kind := Classify(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The request deadline or the caller's context ended: stop here.
			retry = false
			kind = domain.FailureTimeout
			if errors.Is(ctxErr, context.Canceled) {
				kind = domain.FailureCanceled
			}
		}

		if !retry || attempt >= policy.MaxAttempts {
			out.Failure = &domain.SourceFailure{
				Source: req.Source, Key: req.Key, Kind: kind, Attempts: attempt, Err: err,
			}
			out.Duration = time.Since(start)
			observability.RecordFetchOutcome(req.Source, string(kind), out.Duration)
			o.logger.Warn("source failed",
				zap.String("source", req.Source),
				zap.String("key", req.Key),
				zap.String("kind", string(kind)),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return out
		}

		delay := policy.Backoff(attempt)
		o.logger.Debug("retrying source",
			zap.String("source", req.Source),
			zap.String("key", req.Key),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			kind := domain.FailureTimeout
			if errors.Is(ctx.Err(), context.Canceled) {
				kind = domain.FailureCanceled
			}
			out.Failure = &domain.SourceFailure{
				Source: req.Source, Key: req.Key, Kind: kind, Attempts: attempt, Err: err,
			}
			out.Duration = time.Since(start)
			observability.RecordFetchOutcome(req.Source, string(kind), out.Duration)
			return out
		case <-timer.C:
		}
	}
}

// attempt waits for the source's rate limit and a concurrency slot, then calls Do.
func (o *Orchestrator) attempt(ctx context.Context, req Request) (any, error) {
	if limiter, ok := o.limiters[req.Source]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", ctxErrOr(ctx, err))
		}
	}
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire slot: %w", err)
	}
	defer o.sem.Release(1)

	observability.AddFetchInFlight(1)
	defer observability.AddFetchInFlight(-1)
	observability.RecordFetchAttempt(req.Source)

	attemptTimeout := req.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = o.perAttempt
	}
	attemptCtx := ctx
	if attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, attemptTimeout)
		defer cancel()
	}
	return req.Do(attemptCtx)
}

// ctxErrOr prefers the context's error, so a limiter wait that would exceed
// the deadline is reported as a timeout.
func ctxErrOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := ctx.Deadline(); ok {
		return context.DeadlineExceeded
	}
	return err
}
