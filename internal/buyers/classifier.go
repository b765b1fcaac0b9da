// Package buyers ranks the buyers of a mint and labels them by entry timing.
package buyers

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"onchain-analytics/internal/domain"
)

// Defaults for the classification thresholds.
const (
	DefaultSniperRankCeiling = 10
	DefaultSniperWindow      = 15 * time.Second
	DefaultEarlyWindow       = time.Hour
)

// Options configures a Classifier.
type Options struct {
	// SniperRankCeiling is the highest first-buy rank that is always a sniper. Values below 1 use the default.
	SniperRankCeiling int
	// SniperWindow is the time after launch within which any first buy is a sniper buy.
	SniperWindow time.Duration
	// EarlyWindow is the time after launch within which a buy is early.
	EarlyWindow time.Duration
}

// Window restricts classification to buys in [StartMs, EndMs]. Zero bounds are open.
type Window struct {
	StartMs int64
	EndMs   int64
}

func (w Window) contains(ts int64) bool {
	if w.StartMs > 0 && ts < w.StartMs {
		return false
	}
	if w.EndMs > 0 && ts > w.EndMs {
		return false
	}
	return true
}

// Classifier labels buyers as SNIPER, EARLY or ORGANIC.
type Classifier struct {
	rankCeiling int
	sniperMs    int64
	earlyMs     int64
}

// New creates a Classifier.
func New(opts Options) *Classifier {
	c := &Classifier{
		rankCeiling: opts.SniperRankCeiling,
		sniperMs:    opts.SniperWindow.Milliseconds(),
		earlyMs:     opts.EarlyWindow.Milliseconds(),
	}
	if c.rankCeiling < 1 {
		c.rankCeiling = DefaultSniperRankCeiling
	}
	if c.sniperMs <= 0 {
		c.sniperMs = DefaultSniperWindow.Milliseconds()
	}
	if c.earlyMs <= 0 {
		c.earlyMs = DefaultEarlyWindow.Milliseconds()
	}
	if c.earlyMs < c.sniperMs {
		c.earlyMs = c.sniperMs
	}
	return c
}

// Classify ranks every wallet with at least one buy of mint by first buy time.
//
// Airdrops are not buys. Ties on first-buy time are broken by the signature of
// that buy, then by wallet, so ranks are stable. A wallet is a SNIPER when its
// rank is within the ceiling or it bought within the sniper window, EARLY when
// it bought within the early window, ORGANIC otherwise.
func (c *Classifier) Classify(mint string, launchMs int64, events []domain.TradeEvent) *domain.BuyerCensus {
	return c.ClassifyWindow(mint, launchMs, events, Window{})
}

// ClassifyWindow is Classify restricted to buys inside w.
func (c *Classifier) ClassifyWindow(mint string, launchMs int64, events []domain.TradeEvent, w Window) *domain.BuyerCensus {
	byWallet := make(map[string]*domain.BuyerClassification)
	for _, e := range events {
		if !isBuy(e, mint) || !w.contains(e.TimestampMs) {
			continue
		}
		b, ok := byWallet[e.Wallet]
		if !ok {
			b = &domain.BuyerClassification{
				Wallet:              e.Wallet,
				FirstBuyTimestampMs: e.TimestampMs,
				FirstBuySignature:   e.Signature,
			}
			byWallet[e.Wallet] = b
		}
		if e.TimestampMs < b.FirstBuyTimestampMs ||
			(e.TimestampMs == b.FirstBuyTimestampMs && e.Signature < b.FirstBuySignature) {
			b.FirstBuyTimestampMs = e.TimestampMs
			b.FirstBuySignature = e.Signature
		}
		b.TotalBoughtTokens += e.TokenAmount
		b.TotalSpentSol += e.SolAmount
		b.BuyCount++
	}

	buyers := make([]domain.BuyerClassification, 0, len(byWallet))
	for _, b := range byWallet {
		buyers = append(buyers, *b)
	}
	slices.SortFunc(buyers, compareFirstBuy)

	census := &domain.BuyerCensus{
		Mint:              mint,
		LaunchTimestampMs: launchMs,
		UniqueBuyerCount:  len(buyers),
	}
	for i := range buyers {
		b := &buyers[i]
		b.FirstBuyRank = i + 1
		b.MsSinceLaunch = b.FirstBuyTimestampMs - launchMs
		b.Label = c.label(b.FirstBuyRank, b.MsSinceLaunch)
		switch b.Label {
		case domain.BuyerLabelSniper:
			census.SniperCount++
		case domain.BuyerLabelEarly:
			census.EarlyCount++
		default:
			census.OrganicCount++
		}
	}
	census.Buyers = buyers
	return census
}

// label applies the thresholds. A buy before launch counts as zero elapsed time.
func (c *Classifier) label(rank int, sinceLaunch int64) domain.BuyerLabel {
	elapsed := max(sinceLaunch, 0)
	switch {
	case rank <= c.rankCeiling || elapsed <= c.sniperMs:
		return domain.BuyerLabelSniper
	case elapsed <= c.earlyMs:
		return domain.BuyerLabelEarly
	}
	return domain.BuyerLabelOrganic
}

func isBuy(e domain.TradeEvent, mint string) bool {
	return e.Mint == mint &&
		e.Kind == domain.TradeKindBuy &&
		e.Source != domain.TradeSourceAirdrop &&
		e.Wallet != "" &&
		!e.Suspect
}

// compareFirstBuy orders by first buy time, then its signature, then wallet.
func compareFirstBuy(a, b domain.BuyerClassification) int {
	if c := cmp.Compare(a.FirstBuyTimestampMs, b.FirstBuyTimestampMs); c != 0 {
		return c
	}
	if c := strings.Compare(a.FirstBuySignature, b.FirstBuySignature); c != 0 {
		return c
	}
	return strings.Compare(a.Wallet, b.Wallet)
}

// EarliestBuy returns the earliest buy timestamp of mint in events, or 0 if none.
// It stands in for the launch time when the launch could not be resolved.
func EarliestBuy(mint string, events []domain.TradeEvent) int64 {
	var earliest int64
	for _, e := range events {
		if !isBuy(e, mint) {
			continue
		}
		if earliest == 0 || e.TimestampMs < earliest {
			earliest = e.TimestampMs
		}
	}
	return earliest
}
