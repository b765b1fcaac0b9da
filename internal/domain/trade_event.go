package domain

// TradeKind is the direction of a trade from the wallet's point of view.
type TradeKind string

const (
	TradeKindBuy  TradeKind = "BUY"
	TradeKindSell TradeKind = "SELL"
)

// TradeSource records which classification rule produced a trade event.
type TradeSource string

const (
	TradeSourceDirectTransfer TradeSource = "DIRECT_TRANSFER"
	TradeSourceRouterSwap     TradeSource = "ROUTER_SWAP"
	TradeSourceAirdrop        TradeSource = "AIRDROP"
)

// IsValid checks if the source is a known value.
func (s TradeSource) IsValid() bool {
	switch s {
	case TradeSourceDirectTransfer, TradeSourceRouterSwap, TradeSourceAirdrop:
		return true
	}
	return false
}

// TradeEvent is a normalized buy or sell of one token by one wallet.
// Amounts are decimal-normalized (whole tokens, whole SOL).
type TradeEvent struct {
	Signature   string      `json:"signature"`
	TimestampMs int64       `json:"timestampMs"`
	Wallet      string      `json:"wallet"`
	Mint        string      `json:"mint"`
	Kind        TradeKind   `json:"kind"`
	Source      TradeSource `json:"source"`
	TokenAmount float64     `json:"tokenAmount"`

	// SolAmount is zero for airdrops and token-for-token swaps.
	SolAmount float64 `json:"solAmount"`
	// PricePerToken is nil when the trade was not native-denominated.
	PricePerToken *float64 `json:"pricePerToken,omitempty"`

	// CounterMint and CounterAmount describe the other side of a token-for-token swap.
	CounterMint   string  `json:"counterMint,omitempty"`
	CounterAmount float64 `json:"counterAmount,omitempty"`

	// Suspect marks amounts above the sanity ceiling. Suspect events never reach the ledger.
	Suspect bool `json:"suspect,omitempty"`
}

// Priced reports whether the event carries a native-denominated price.
func (e TradeEvent) Priced() bool {
	return e.PricePerToken != nil
}

// DropStats counts records discarded during ingestion and normalization, by reason.
type DropStats struct {
	Malformed    int `json:"malformed"`
	ZeroAmount   int `json:"zeroAmount"`
	Unrelated    int `json:"unrelated"`
	NativeOnly   int `json:"nativeOnly"`
	TransferOut  int `json:"transferOut"`
	FailedTx     int `json:"failedTx"`
	PairedBySwap int `json:"pairedBySwap"`
	Dust         int `json:"dust"`
}

// Add accumulates other into s.
func (s *DropStats) Add(other DropStats) {
	s.Malformed += other.Malformed
	s.ZeroAmount += other.ZeroAmount
	s.Unrelated += other.Unrelated
	s.NativeOnly += other.NativeOnly
	s.TransferOut += other.TransferOut
	s.FailedTx += other.FailedTx
	s.PairedBySwap += other.PairedBySwap
	s.Dust += other.Dust
}

// Total returns the number of discarded records.
func (s DropStats) Total() int {
	return s.Malformed + s.ZeroAmount + s.Unrelated + s.NativeOnly +
		s.TransferOut + s.FailedTx + s.PairedBySwap + s.Dust
}

// TradeHistory is the normalized trade history of one wallet.
type TradeHistory struct {
	Wallet       string       `json:"wallet"`
	Events       []TradeEvent `json:"events"`
	Drops        DropStats    `json:"drops"`
	SuspectCount int          `json:"suspectCount"`
	Truncated    bool         `json:"truncated,omitempty"` // upstream history cut at the page cap
	ComputedAtMs int64        `json:"computedAtMs"`
}
