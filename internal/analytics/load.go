package analytics

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"onchain-analytics/internal/cache"
	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/observability"
)

// load returns the cached value of subject, or computes it. Concurrent callers
// for the same key share one computation. The computation is detached from the
// caller that started it so a caller giving up does not fail the others;
// computeTimeout bounds it instead.
func load[T any](ctx context.Context, e *Engine, view cache.View[T], subject string, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := view.Load(ctx, subject); ok {
		return v, nil
	}

	key := view.Kind().Key(subject)
	ch := e.flight.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.computeTimeout)
		defer cancel()
		return computeAndStore(cctx, e, view, subject, compute)
	})

	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("%s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Shared {
			observability.RecordSharedComputation(string(view.Kind()))
		}
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("%s: unexpected result type %T", key, res.Val)
		}
		return v, nil
	}
}

func computeAndStore[T any](ctx context.Context, e *Engine, view cache.View[T], subject string, compute func(context.Context) (T, error)) (T, error) {
	tok, beginErr := view.Begin(ctx, subject)
	if beginErr != nil {
		e.logger.Warn("cache unavailable, result will not be stored",
			zap.String("kind", string(view.Kind())),
			zap.String("subject", subject),
			zap.Error(beginErr),
		)
	}

	v, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if beginErr == nil {
		if err := view.Save(ctx, tok, v); err != nil && !errors.Is(err, domain.ErrStaleWrite) {
			e.logger.Warn("storing result failed",
				zap.String("key", tok.Key),
				zap.Error(err),
			)
		}
	}
	return v, nil
}
