package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/observability"
)

// ErrPageLimit is returned when a source has more pages than allowed.
var ErrPageLimit = errors.New("page limit reached")

// Page is one page of a paginated source.
type Page[T any] struct {
	Items []T
	// Next is the cursor of the following page, empty on the last page.
	Next string
	// TotalHint is the total item count when the source reports it, else 0.
	TotalHint int
}

// Pager describes a paginated source.
type Pager[T any] struct {
	Source string
	Key    string

	// MaxPages caps traversal. Zero means unlimited.
	MaxPages int
	// AllowTruncate returns the pages read so far when MaxPages is hit
	// instead of failing.
	AllowTruncate bool

	// Fetch reads the page at cursor. The first call gets FirstCursor.
	Fetch func(ctx context.Context, cursor string) (Page[T], error)
	// FirstCursor is the cursor of the first page.
	FirstCursor string
	// PageCursor returns the cursor of the n-th page (0-based) for sources
	// whose pages are addressable by index. With a TotalHint on the first page
	// the remaining pages are then fetched concurrently.
	PageCursor func(n int) string
}

// NumberedPages returns a PageCursor for 1-based page numbers.
func NumberedPages(n int) string {
	return strconv.Itoa(n + 1)
}

// Collected is the full item set of a paginated source.
type Collected[T any] struct {
	Items     []T
	Pages     int
	Truncated bool
}

// CollectPages reads every page of p through the orchestrator, each page with
// its own timeout and retries. Any failing page fails the whole collection;
// a partial result is only returned when AllowTruncate is set and the page cap was hit.
func CollectPages[T any](ctx context.Context, o *Orchestrator, p Pager[T]) (*Collected[T], *domain.SourceFailure) {
	first, failure := fetchPage(ctx, o, p, 0, p.FirstCursor)
	if failure != nil {
		return nil, failure
	}

	if p.PageCursor != nil && first.TotalHint > len(first.Items) && len(first.Items) > 0 {
		return collectIndexed(ctx, o, p, first)
	}

	out := &Collected[T]{Items: first.Items, Pages: 1}
	next := first.Next
	for next != "" {
		if p.MaxPages > 0 && out.Pages >= p.MaxPages {
			if p.AllowTruncate {
				out.Truncated = true
				return out, nil
			}
			return nil, pageLimitFailure(p, out.Pages)
		}
		page, failure := fetchPage(ctx, o, p, out.Pages, next)
		if failure != nil {
			return nil, failure
		}
		out.Items = append(out.Items, page.Items...)
		out.Pages++
		next = page.Next
	}
	return out, nil
}

// collectIndexed fetches pages 2..N concurrently once the first page reveals N.
func collectIndexed[T any](ctx context.Context, o *Orchestrator, p Pager[T], first Page[T]) (*Collected[T], *domain.SourceFailure) {
	pageSize := len(first.Items)
	total := (first.TotalHint + pageSize - 1) / pageSize
	truncated := false
	if p.MaxPages > 0 && total > p.MaxPages {
		if !p.AllowTruncate {
			return nil, pageLimitFailure(p, p.MaxPages)
		}
		total = p.MaxPages
		truncated = true
	}

	pages := make([][]T, total)
	pages[0] = first.Items

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.MaxInFlight())
	failures := make([]*domain.SourceFailure, total)
	for n := 1; n < total; n++ {
		g.Go(func() error {
			page, failure := fetchPage(gctx, o, p, n, p.PageCursor(n))
			if failure != nil {
				failures[n] = failure
				return failure
			}
			pages[n] = page.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Report the first failing page rather than a sibling canceled because of it.
		for _, f := range failures {
			if f != nil && f.Kind != domain.FailureCanceled {
				return nil, f
			}
		}
		var failure *domain.SourceFailure
		errors.As(err, &failure)
		return nil, failure
	}

	out := &Collected[T]{Pages: total, Truncated: truncated}
	for _, items := range pages {
		out.Items = append(out.Items, items...)
	}
	return out, nil
}

func fetchPage[T any](ctx context.Context, o *Orchestrator, p Pager[T], n int, cursor string) (Page[T], *domain.SourceFailure) {
	out := o.Fetch(ctx, Request{
		Key:    fmt.Sprintf("%s#%d", p.Key, n),
		Source: p.Source,
		Do: func(ctx context.Context) (any, error) {
			return p.Fetch(ctx, cursor)
		},
	})
	if out.Failure != nil {
		out.Failure.Key = p.Key
		return Page[T]{}, out.Failure
	}
	observability.RecordPageFetched(p.Source)
	page, err := Value[Page[T]](out)
	if err != nil {
		return Page[T]{}, &domain.SourceFailure{
			Source: p.Source, Key: p.Key, Kind: domain.FailureMalformed, Attempts: out.Attempts, Err: err,
		}
	}
	return page, nil
}

func pageLimitFailure[T any](p Pager[T], pages int) *domain.SourceFailure {
	return &domain.SourceFailure{
		Source: p.Source,
		Key:    p.Key,
		Kind:   domain.FailureUpstream,
		Err:    fmt.Errorf("%w: %d pages", ErrPageLimit, pages),
	}
}
