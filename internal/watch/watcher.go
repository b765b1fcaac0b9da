// Package watch invalidates cached holder censuses when a watched mint shows
// on-chain activity.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"onchain-analytics/internal/observability"
	"onchain-analytics/internal/solana"
)

// DefaultDebounce is the quiet period between the first activity on a mint and its invalidation.
const DefaultDebounce = 5 * time.Second

// Invalidator drops the cached census of a mint.
type Invalidator interface {
	InvalidateCensus(ctx context.Context, mint string) error
}

// Options configures a Watcher.
type Options struct {
	Mints []string
	// Debounce coalesces bursts of activity into one invalidation per mint.
	Debounce time.Duration
	Logger   *zap.Logger
}

// Watcher subscribes to the logs of each watched mint.
type Watcher struct {
	sub      solana.LogSubscriber
	inv      Invalidator
	mints    []string
	debounce time.Duration
	logger   *zap.Logger
}

// New creates a Watcher.
func New(sub solana.LogSubscriber, inv Invalidator, opts Options) *Watcher {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		sub:      sub,
		inv:      inv,
		mints:    opts.Mints,
		debounce: debounce,
		logger:   logger.With(zap.String("component", "watcher")),
	}
}

// Run subscribes once per mint and invalidates until ctx is done or every
// subscription channel is closed. Pending invalidations are flushed when the
// subscriptions close.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	active := make(chan string, 256)

	var wg sync.WaitGroup
	for _, mint := range w.mints {
		// Nodes accept one address per logs subscription.
		ch, err := w.sub.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{mint}})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", mint, err)
		}
		w.logger.Info("watching mint", zap.String("mint", mint))

		wg.Add(1)
		go func(mint string, ch <-chan solana.LogNotification) {
			defer wg.Done()
			for {
				var n solana.LogNotification
				select {
				case <-ctx.Done():
					return
				case next, ok := <-ch:
					if !ok {
						return
					}
					n = next
				}
				if n.Err != nil {
					continue
				}
				observability.RecordWatchedLog()
				select {
				case active <- mint:
				case <-ctx.Done():
					return
				}
			}
		}(mint, ch)
	}
	go func() {
		wg.Wait()
		close(active)
	}()

	due := make(chan string)
	stop := make(chan struct{})
	defer close(stop)
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case mint, ok := <-active:
			if !ok {
				for mint, t := range pending {
					t.Stop()
					w.invalidate(ctx, mint)
				}
				clear(pending)
				w.logger.Info("all log subscriptions closed")
				return nil
			}
			if _, scheduled := pending[mint]; scheduled {
				continue
			}
			pending[mint] = time.AfterFunc(w.debounce, func() {
				select {
				case due <- mint:
				case <-stop:
				}
			})

		case mint := <-due:
			delete(pending, mint)
			w.invalidate(ctx, mint)
		}
	}
}

func (w *Watcher) invalidate(ctx context.Context, mint string) {
	if err := w.inv.InvalidateCensus(ctx, mint); err != nil {
		w.logger.Warn("census invalidation failed", zap.String("mint", mint), zap.Error(err))
		return
	}
	w.logger.Debug("census invalidated on activity", zap.String("mint", mint))
}
