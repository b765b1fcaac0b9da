package providers

import (
	"context"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/orchestrator"
)

// Quoter returns the current price of a mint in SOL.
type Quoter interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// Prices quotes mints through the orchestrator.
type Prices struct {
	quoter Quoter
	orch   *orchestrator.Orchestrator
}

// NewPrices creates a Prices provider.
func NewPrices(quoter Quoter, orch *orchestrator.Orchestrator) *Prices {
	return &Prices{quoter: quoter, orch: orch}
}

// Price returns the price of one mint.
func (p *Prices) Price(ctx context.Context, mint string) (float64, error) {
	return orchestrator.Value[float64](p.orch.Fetch(ctx, p.request(mint)))
}

// PriceAll quotes every mint concurrently. Each mint lands in exactly one of the two maps.
func (p *Prices) PriceAll(ctx context.Context, mints []string) (map[string]float64, map[string]*domain.SourceFailure) {
	reqs := make([]orchestrator.Request, 0, len(mints))
	for _, mint := range mints {
		reqs = append(reqs, p.request(mint))
	}

	prices := make(map[string]float64, len(mints))
	failures := make(map[string]*domain.SourceFailure)
	for _, out := range p.orch.FetchAll(ctx, reqs) {
		mint := out.Key
		v, err := orchestrator.Value[float64](out)
		if err != nil {
			failures[mint] = asFailure(out, err)
			continue
		}
		prices[mint] = v
	}
	return prices, failures
}

func (p *Prices) request(mint string) orchestrator.Request {
	return orchestrator.Request{
		Key:    mint,
		Source: SourcePrice,
		Do: func(ctx context.Context) (any, error) {
			return p.quoter.Price(ctx, mint)
		},
	}
}

func asFailure(out orchestrator.Outcome, err error) *domain.SourceFailure {
	if out.Failure != nil {
		return out.Failure
	}
	return &domain.SourceFailure{
		Source: out.Source, Key: out.Key, Kind: domain.FailureMalformed, Attempts: out.Attempts, Err: err,
	}
}
