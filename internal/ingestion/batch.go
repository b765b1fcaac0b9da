// Package ingestion maps provider payloads into canonical transfer records
// and swap legs before any shared logic runs.
package ingestion

import "onchain-analytics/internal/domain"

// Batch is the canonical form of one provider response.
type Batch struct {
	Transfers []domain.RawTransferRecord `json:"transfers"`
	Swaps     []domain.SwapLeg           `json:"swaps"`
	// Drops counts payload entries that could not be mapped.
	Drops domain.DropStats `json:"drops"`
	// Truncated is set when the provider stopped at its page cap before the history ended.
	Truncated bool `json:"truncated,omitempty"`
}

// Merge appends other to b.
func (b *Batch) Merge(other *Batch) {
	if other == nil {
		return
	}
	b.Transfers = append(b.Transfers, other.Transfers...)
	b.Swaps = append(b.Swaps, other.Swaps...)
	b.Drops.Add(other.Drops)
	b.Truncated = b.Truncated || other.Truncated
}

// Len returns the number of mapped entries.
func (b *Batch) Len() int {
	return len(b.Transfers) + len(b.Swaps)
}
