package domain

// TokenSupply is the total supply of a mint as reported upstream.
type TokenSupply struct {
	Mint      string
	RawAmount string // integer amount in base units
	Decimals  int
}

// OwnershipRecord is one token account balance as reported by an ownership source.
type OwnershipRecord struct {
	TokenAccount string  // token account address
	Owner        string  // wallet that owns the token account
	Mint         string  // token mint
	Amount       float64 // decimal-normalized balance
}

// HolderRecord is the aggregated balance of one owner.
type HolderRecord struct {
	Owner           string  `json:"owner"`
	Balance         float64 `json:"balance"`
	PercentOfSupply float64 `json:"percentOfSupply"`
	TokenAccounts   int     `json:"tokenAccounts"`

	// ProgramOwned marks owners that are off-curve addresses (pools, bonding curves, vaults).
	ProgramOwned bool `json:"programOwned,omitempty"`
}

// Census is the holder snapshot of one mint.
type Census struct {
	Mint                      string         `json:"mint"`
	TotalSupply               float64        `json:"totalSupply"`
	ReportedSupply            float64        `json:"reportedSupply"`
	SupplyAdjusted            bool           `json:"supplyAdjusted,omitempty"`
	Holders                   []HolderRecord `json:"holders"`
	TotalHolderCount          int            `json:"totalHolderCount"`
	Top10ConcentrationPercent float64        `json:"top10ConcentrationPercent"`
	DustOwnersDropped         int            `json:"dustOwnersDropped"`
	MalformedDropped          int            `json:"malformedDropped"`
	ProgramOwnedHolders       int            `json:"programOwnedHolders"`
	ComputedAtMs              int64          `json:"computedAtMs"`
}
