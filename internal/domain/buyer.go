package domain

// BuyerLabel classifies a buyer by how soon after launch they first bought.
type BuyerLabel string

const (
	BuyerLabelSniper  BuyerLabel = "SNIPER"
	BuyerLabelEarly   BuyerLabel = "EARLY"
	BuyerLabelOrganic BuyerLabel = "ORGANIC"
)

// BuyerClassification is the classification of one wallet for one mint.
type BuyerClassification struct {
	Wallet              string     `json:"wallet"`
	FirstBuyTimestampMs int64      `json:"firstBuyTimestampMs"`
	FirstBuySignature   string     `json:"firstBuySignature"`
	FirstBuyRank        int        `json:"firstBuyRank"`
	MsSinceLaunch       int64      `json:"msSinceLaunch"`
	Label               BuyerLabel `json:"label"`
	TotalBoughtTokens   float64    `json:"totalBoughtTokens"`
	TotalSpentSol       float64    `json:"totalSpentSol"`
	BuyCount            int        `json:"buyCount"`
}

// BuyerCensus is the classification of every buyer of a mint.
type BuyerCensus struct {
	Mint              string                `json:"mint"`
	LaunchTimestampMs int64                 `json:"launchTimestampMs"`
	LaunchEstimated   bool                  `json:"launchEstimated,omitempty"`
	HistoryTruncated  bool                  `json:"historyTruncated,omitempty"`
	Buyers            []BuyerClassification `json:"buyers"`
	UniqueBuyerCount  int                   `json:"uniqueBuyerCount"`
	SniperCount       int                   `json:"sniperCount"`
	EarlyCount        int                   `json:"earlyCount"`
	OrganicCount      int                   `json:"organicCount"`
}
