package cache

import (
	"context"

	"onchain-analytics/internal/domain"
)

// View is the typed view of one kind of a Cache.
type View[T any] struct {
	cache *Cache
	kind  domain.CacheKind
}

// NewView returns the view of kind over c.
func NewView[T any](c *Cache, kind domain.CacheKind) View[T] {
	return View[T]{cache: c, kind: kind}
}

// Kind returns the kind the view reads and writes.
func (v View[T]) Kind() domain.CacheKind {
	return v.kind
}

// Load returns the cached value of subject on a fresh hit.
func (v View[T]) Load(ctx context.Context, subject string) (T, bool) {
	return Lookup[T](ctx, v.cache, v.kind, subject)
}

// Begin starts a computation for subject.
func (v View[T]) Begin(ctx context.Context, subject string) (Token, error) {
	return v.cache.Begin(ctx, v.kind, subject)
}

// Save stores value as the result of the computation started by tok.
func (v View[T]) Save(ctx context.Context, tok Token, value T) error {
	return v.cache.Put(ctx, tok, value)
}

// Clear invalidates subject.
func (v View[T]) Clear(ctx context.Context, subject string) error {
	return v.cache.Invalidate(ctx, v.kind, subject)
}
