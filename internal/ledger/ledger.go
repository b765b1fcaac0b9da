// Package ledger folds trade events into weighted-average cost positions.
package ledger

import (
	"fmt"
	"iter"
	"slices"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/normalization"
)

// dustEpsilon treats float residue below it as an empty position.
const dustEpsilon = 1e-12

// New returns the empty position of wallet in mint.
func New(wallet, mint string) domain.Position {
	return domain.Position{Wallet: wallet, Mint: mint}
}

// Apply returns the position after applying e. p is not modified.
//
// A buy adds tokens and cost. A sell removes tokens at the current average
// cost; a sell larger than the holdings is clamped to what is held and the
// excess (with its share of proceeds) is recorded as untracked.
// Events older than the last applied event are rejected with ErrOutOfOrder.
func Apply(p domain.Position, e domain.TradeEvent) (domain.Position, error) {
	if err := check(p, e); err != nil {
		return p, err
	}
	if p.Wallet == "" {
		p.Wallet = e.Wallet
	}
	if p.Mint == "" {
		p.Mint = e.Mint
	}

	switch e.Kind {
	case domain.TradeKindBuy:
		p.TokensAcquired += e.TokenAmount
		p.RemainingTokens += e.TokenAmount
		p.CostBasisTotal += e.SolAmount

	case domain.TradeKindSell:
		sellAmount := min(e.TokenAmount, p.RemainingTokens)
		proceeds := e.SolAmount
		if sellAmount < e.TokenAmount {
			// Only the tracked share of the sell is realized.
			proceeds = e.SolAmount * sellAmount / e.TokenAmount
			p.UntrackedSellTokens += e.TokenAmount - sellAmount
			p.UntrackedProceeds += e.SolAmount - proceeds
			p.UntrackedSellCount++
		}

		var allocatedCost float64
		if sellAmount > 0 {
			allocatedCost = p.CostBasisTotal * sellAmount / p.RemainingTokens
		}

		p.TokensSold += sellAmount
		p.RealizedProceeds += proceeds
		p.RealizedPnL += proceeds - allocatedCost

		if sellAmount >= p.RemainingTokens || p.RemainingTokens-sellAmount < dustEpsilon {
			p.RemainingTokens = 0
			p.CostBasisTotal = 0
		} else {
			p.RemainingTokens -= sellAmount
			p.CostBasisTotal = max(p.CostBasisTotal-allocatedCost, 0)
		}
	}

	p.TradeCount++
	p.LastTimestampMs = e.TimestampMs
	return p, nil
}

func check(p domain.Position, e domain.TradeEvent) error {
	if e.Wallet == "" || e.Mint == "" {
		return fmt.Errorf("%w: missing wallet or mint", domain.ErrMalformedEvent)
	}
	if p.Wallet != "" && p.Wallet != e.Wallet {
		return fmt.Errorf("%w: wallet %s does not match position wallet %s", domain.ErrMalformedEvent, e.Wallet, p.Wallet)
	}
	if p.Mint != "" && p.Mint != e.Mint {
		return fmt.Errorf("%w: mint %s does not match position mint %s", domain.ErrMalformedEvent, e.Mint, p.Mint)
	}
	if e.Kind != domain.TradeKindBuy && e.Kind != domain.TradeKindSell {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrMalformedEvent, e.Kind)
	}
	if e.TokenAmount < 0 || e.SolAmount < 0 {
		return fmt.Errorf("%w: negative amount", domain.ErrMalformedEvent)
	}
	if e.TokenAmount == 0 {
		return fmt.Errorf("%w: zero token amount", domain.ErrMalformedEvent)
	}
	if e.Suspect {
		return fmt.Errorf("%w: suspect event", domain.ErrMalformedEvent)
	}
	if e.TimestampMs < p.LastTimestampMs {
		return fmt.Errorf("%w: event at %d before last applied %d", domain.ErrOutOfOrder, e.TimestampMs, p.LastTimestampMs)
	}
	return nil
}

// Replay sorts a copy of events and folds the ones for (wallet, mint) into a position.
func Replay(wallet, mint string, events []domain.TradeEvent) (domain.Position, error) {
	sorted := slices.Clone(events)
	normalization.SortEvents(sorted)

	p := New(wallet, mint)
	for _, e := range sorted {
		if e.Wallet != wallet || e.Mint != mint {
			continue
		}
		var err error
		if p, err = Apply(p, e); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Build folds an ordered event sequence into one position per mint, sorted by mint.
// Suspect events are skipped. Events must already be ordered; an out-of-order
// event aborts the fold.
func Build(events iter.Seq[domain.TradeEvent]) ([]domain.Position, error) {
	byMint := make(map[string]domain.Position)
	for e := range events {
		if e.Suspect {
			continue
		}
		p, ok := byMint[e.Mint]
		if !ok {
			p = New(e.Wallet, e.Mint)
		}
		next, err := Apply(p, e)
		if err != nil {
			return nil, fmt.Errorf("apply %s %s: %w", e.Signature, e.Mint, err)
		}
		byMint[e.Mint] = next
	}

	positions := make([]domain.Position, 0, len(byMint))
	for _, p := range byMint {
		positions = append(positions, p)
	}
	slices.SortFunc(positions, func(a, b domain.Position) int {
		switch {
		case a.Mint < b.Mint:
			return -1
		case a.Mint > b.Mint:
			return 1
		}
		return 0
	})
	return positions, nil
}

// Unrealized returns remainingTokens * price - costBasisTotal.
func Unrealized(p domain.Position, price float64) float64 {
	return p.RemainingTokens*price - p.CostBasisTotal
}

// Summarize attaches a valuation to p when price is known.
func Summarize(p domain.Position, price *float64) domain.PositionSummary {
	s := domain.PositionSummary{Position: p}
	if price != nil {
		u := Unrealized(p, *price)
		current := *price
		s.CurrentPrice = &current
		s.UnrealizedPnL = &u
	}
	return s
}
