package providers

import (
	"context"

	"onchain-analytics/internal/helius"
	"onchain-analytics/internal/ingestion"
	"onchain-analytics/internal/orchestrator"
)

// DefaultHistoryPages caps history traversal per address.
const DefaultHistoryPages = 50

// TransactionLister reads one page of enhanced transactions.
type TransactionLister interface {
	Transactions(ctx context.Context, address string, q helius.PageQuery) ([]helius.EnhancedTransaction, error)
}

// HistoryOptions configures a History provider.
type HistoryOptions struct {
	PageSize int // transactions per request, capped at helius.MaxPageSize
	MaxPages int // pages per address; the rest of the history is dropped
}

// History reads wallet and mint transaction history from Helius.
type History struct {
	client   TransactionLister
	orch     *orchestrator.Orchestrator
	pageSize int
	maxPages int
}

// NewHistory creates a History provider.
func NewHistory(client TransactionLister, orch *orchestrator.Orchestrator, opts HistoryOptions) *History {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > helius.MaxPageSize {
		pageSize = helius.MaxPageSize
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultHistoryPages
	}
	return &History{client: client, orch: orch, pageSize: pageSize, maxPages: maxPages}
}

// WalletHistory returns the canonical transfer records and swap legs involving wallet.
func (h *History) WalletHistory(ctx context.Context, wallet string) (*ingestion.Batch, error) {
	return h.collect(ctx, "wallet:"+wallet, wallet)
}

// MintHistory returns the canonical transfer records and swap legs involving mint.
func (h *History) MintHistory(ctx context.Context, mint string) (*ingestion.Batch, error) {
	return h.collect(ctx, "mint:"+mint, mint)
}

func (h *History) collect(ctx context.Context, key, address string) (*ingestion.Batch, error) {
	collected, failure := orchestrator.CollectPages(ctx, h.orch, orchestrator.Pager[helius.EnhancedTransaction]{
		Source:        SourceHelius,
		Key:           key,
		MaxPages:      h.maxPages,
		AllowTruncate: true,
		Fetch: func(ctx context.Context, cursor string) (orchestrator.Page[helius.EnhancedTransaction], error) {
			txs, err := h.client.Transactions(ctx, address, helius.PageQuery{Before: cursor, Limit: h.pageSize})
			if err != nil {
				return orchestrator.Page[helius.EnhancedTransaction]{}, err
			}
			return orchestrator.Page[helius.EnhancedTransaction]{
				Items: txs,
				Next:  helius.NextCursor(txs, h.pageSize),
			}, nil
		},
	})
	if failure != nil {
		return nil, failure
	}

	batch := ingestion.FromEnhanced(collected.Items)
	batch.Truncated = collected.Truncated
	return batch, nil
}
