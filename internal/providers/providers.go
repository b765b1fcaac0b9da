// Package providers adapts upstream clients to the engine's provider contracts.
// Every upstream call goes through the orchestrator, which owns timeouts,
// retries, rate limits and the in-flight bound. Failures are returned as
// *domain.SourceFailure.
package providers

import (
	"onchain-analytics/internal/domain"
)

// Source names, used for rate limits, metrics and failure reports.
const (
	SourceHelius = "helius"
	SourceRPC    = "solana_rpc"
	SourcePrice  = "price"
)

// Holdings is the complete token-account census input of one mint.
type Holdings struct {
	Supply      domain.TokenSupply
	TotalSupply float64 // Supply normalized by its decimals
	Records     []domain.OwnershipRecord
	Drops       domain.DropStats
	Pages       int
}
