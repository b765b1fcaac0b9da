package providers

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/ingestion"
	"onchain-analytics/internal/normalization"
	"onchain-analytics/internal/orchestrator"
	"onchain-analytics/internal/solana"
)

// Ownership pagination defaults.
const (
	DefaultAccountsPageSize = 1000
	DefaultAccountsMaxPages = 200
)

// OwnershipOptions configures an Ownership provider.
type OwnershipOptions struct {
	PageSize int
	MaxPages int
}

// Ownership reads token supply and token-account ownership over Solana RPC.
type Ownership struct {
	rpc      solana.RPCClient
	orch     *orchestrator.Orchestrator
	pageSize int
	maxPages int
}

// NewOwnership creates an Ownership provider.
func NewOwnership(rpc solana.RPCClient, orch *orchestrator.Orchestrator, opts OwnershipOptions) *Ownership {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultAccountsPageSize
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultAccountsMaxPages
	}
	return &Ownership{rpc: rpc, orch: orch, pageSize: pageSize, maxPages: maxPages}
}

// TokenSupply returns the reported supply of mint.
func (o *Ownership) TokenSupply(ctx context.Context, mint string) (domain.TokenSupply, error) {
	out := o.orch.Fetch(ctx, orchestrator.Request{
		Key:    "supply:" + mint,
		Source: SourceRPC,
		Do: func(ctx context.Context) (any, error) {
			return o.rpc.GetTokenSupply(ctx, mint)
		},
	})
	amount, err := orchestrator.Value[*solana.TokenAmount](out)
	if err != nil {
		return domain.TokenSupply{}, err
	}
	return domain.TokenSupply{Mint: mint, RawAmount: amount.Amount, Decimals: amount.Decimals}, nil
}

// Holdings reads the supply and every token account of mint concurrently and
// returns balances normalized by the mint's decimals.
// The census must be complete, so hitting the page cap is a failure.
func (o *Ownership) Holdings(ctx context.Context, mint string) (*Holdings, error) {
	var (
		supply   domain.TokenSupply
		accounts []solana.TokenAccount
		pages    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		supply, err = o.TokenSupply(gctx, mint)
		return err
	})
	g.Go(func() error {
		collected, failure := o.collectAccounts(gctx, mint)
		if failure != nil {
			return failure
		}
		accounts, pages = collected.Items, collected.Pages
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	decimals := supply.Decimals
	total, err := normalization.NormalizeAmount(supply.RawAmount, &decimals)
	if err != nil {
		return nil, &domain.SourceFailure{
			Source: SourceRPC, Key: "supply:" + mint, Kind: domain.FailureMalformed, Attempts: 1,
			Err: fmt.Errorf("%w: supply %q: %v", domain.ErrMalformedPayload, supply.RawAmount, err),
		}
	}

	records, drops := ingestion.FromTokenAccounts(accounts, decimals)
	return &Holdings{Supply: supply, TotalSupply: total, Records: records, Drops: drops, Pages: pages}, nil
}

func (o *Ownership) collectAccounts(ctx context.Context, mint string) (*orchestrator.Collected[solana.TokenAccount], *domain.SourceFailure) {
	return orchestrator.CollectPages(ctx, o.orch, orchestrator.Pager[solana.TokenAccount]{
		Source:      SourceRPC,
		Key:         "accounts:" + mint,
		MaxPages:    o.maxPages,
		FirstCursor: "1",
		Fetch: func(ctx context.Context, cursor string) (orchestrator.Page[solana.TokenAccount], error) {
			page, err := strconv.Atoi(cursor)
			if err != nil {
				return orchestrator.Page[solana.TokenAccount]{}, fmt.Errorf("%w: bad page cursor %q", domain.ErrConfiguration, cursor)
			}
			res, err := o.rpc.GetTokenAccounts(ctx, mint, page, o.pageSize)
			if err != nil {
				return orchestrator.Page[solana.TokenAccount]{}, err
			}
			next := ""
			if len(res.Accounts) >= o.pageSize {
				next = strconv.Itoa(page + 1)
			}
			return orchestrator.Page[solana.TokenAccount]{Items: res.Accounts, Next: next}, nil
		},
	})
}
