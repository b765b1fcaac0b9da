// Package holders aggregates token account balances into a per-owner census.
package holders

import (
	"slices"
	"time"

	"go.uber.org/zap"

	"onchain-analytics/internal/address"
	"onchain-analytics/internal/domain"
)

// DefaultDustThreshold is the whole-token balance below which an owner is dropped.
const DefaultDustThreshold = 1.0

// TopN is the number of largest holders summed into the concentration figure.
const TopN = 10

// Options configures an Aggregator.
type Options struct {
	// DustThreshold drops owners whose summed balance is below it.
	// Zero uses DefaultDustThreshold; a negative value disables the filter.
	DustThreshold float64

	// ExcludeProgramOwned leaves program-derived owners out of the concentration figure.
	ExcludeProgramOwned bool

	Logger *zap.Logger
	Now    func() time.Time
}

// Aggregator builds holder censuses.
type Aggregator struct {
	dust           float64
	excludeProgram bool
	logger         *zap.Logger
	now            func() time.Time
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	dust := opts.DustThreshold
	if dust == 0 {
		dust = DefaultDustThreshold
	}
	if dust < 0 {
		dust = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{dust: dust, excludeProgram: opts.ExcludeProgramOwned, logger: logger, now: now}
}

// Census groups records by owner, drops dust and ranks owners by balance.
// records must be the complete ownership set of mint; a partial set gives a wrong census.
//
// If the summed balances exceed totalSupply the sum is used as the effective supply and SupplyAdjusted is set, so percentages
// never exceed 100.
func (a *Aggregator) Census(mint string, records []domain.OwnershipRecord, totalSupply float64) *domain.Census {
	c := &domain.Census{
		Mint:           mint,
		ReportedSupply: totalSupply,
		ComputedAtMs:   a.now().UnixMilli(),
	}

	type agg struct {
		balance  float64
		accounts int
	}
	owners := make(map[string]*agg)
	for _, r := range records {
		if r.Owner == "" || r.Amount < 0 || (r.Mint != "" && r.Mint != mint) {
			c.MalformedDropped++
			continue
		}
		o, ok := owners[r.Owner]
		if !ok {
			o = &agg{}
			owners[r.Owner] = o
		}
		o.balance += r.Amount
		o.accounts++
	}

	var sum float64
	holders := make([]domain.HolderRecord, 0, len(owners))
	for owner, o := range owners {
		if o.balance <= 0 || o.balance < a.dust {
			c.DustOwnersDropped++
			continue
		}
		sum += o.balance
		holders = append(holders, domain.HolderRecord{
			Owner:         owner,
			Balance:       o.balance,
			TokenAccounts: o.accounts,
			ProgramOwned:  address.IsProgramDerived(owner),
		})
	}

	supply := totalSupply
	if sum > supply {
		supply = sum
		c.SupplyAdjusted = true
	}
	c.TotalSupply = supply

	slices.SortFunc(holders, compareHolders)

	ranked := 0
	for i := range holders {
		h := &holders[i]
		if supply > 0 {
			h.PercentOfSupply = h.Balance / supply * 100
		}
		if h.ProgramOwned {
			c.ProgramOwnedHolders++
			if a.excludeProgram {
				continue
			}
		}
		if ranked < TopN {
			c.Top10ConcentrationPercent += h.PercentOfSupply
			ranked++
		}
	}

	c.Holders = holders
	c.TotalHolderCount = len(holders)

	if c.SupplyAdjusted {
		a.logger.Warn("holder balances exceed reported supply",
			zap.String("mint", mint),
			zap.Float64("reported_supply", totalSupply),
			zap.Float64("summed_balances", sum),
		)
	}
	return c
}

// compareHolders orders by balance DESC, then owner ASC.
func compareHolders(a, b domain.HolderRecord) int {
	switch {
	case a.Balance > b.Balance:
		return -1
	case a.Balance < b.Balance:
		return 1
	case a.Owner < b.Owner:
		return -1
	case a.Owner > b.Owner:
		return 1
	}
	return 0
}
