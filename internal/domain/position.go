package domain

// Position is the running weighted-average cost state of one wallet in one mint.
type Position struct {
	Wallet           string  `json:"wallet"`
	Mint             string  `json:"mint"`
	TokensAcquired   float64 `json:"tokensAcquired"`
	TokensSold       float64 `json:"tokensSold"`
	RemainingTokens  float64 `json:"remainingTokens"`
	CostBasisTotal   float64 `json:"costBasisTotal"`
	RealizedProceeds float64 `json:"realizedProceeds"`
	RealizedPnL      float64 `json:"realizedPnl"`
	TradeCount       int     `json:"tradeCount"`
	LastTimestampMs  int64   `json:"lastTimestampMs"`

	// Untracked* accumulate the excess of sells over tracked holdings.
	// A non-zero value means tokens arrived through a path the normalizer never saw.
	UntrackedSellTokens float64 `json:"untrackedSellTokens,omitempty"`
	UntrackedProceeds   float64 `json:"untrackedProceeds,omitempty"`
	UntrackedSellCount  int     `json:"untrackedSellCount,omitempty"`
}

// AverageCost returns cost basis per remaining token, or 0 when nothing is held.
func (p Position) AverageCost() float64 {
	if p.RemainingTokens <= 0 {
		return 0
	}
	return p.CostBasisTotal / p.RemainingTokens
}

// IsOpen reports whether the position still holds tokens.
func (p Position) IsOpen() bool {
	return p.RemainingTokens > 0
}

// PositionSummary is a position plus its mark-to-market valuation when a price is known.
type PositionSummary struct {
	Position
	CurrentPrice  *float64 `json:"currentPrice,omitempty"`
	UnrealizedPnL *float64 `json:"unrealizedPnl,omitempty"`
}
