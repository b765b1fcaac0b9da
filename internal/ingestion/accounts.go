package ingestion

import (
	"strconv"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/normalization"
	"onchain-analytics/internal/solana"
)

// FromTokenAccounts maps token accounts of one mint into ownership records
// with decimal-normalized balances. Accounts without an owner are malformed;
// empty accounts are counted as zero-amount and skipped.
func FromTokenAccounts(accounts []solana.TokenAccount, decimals int) ([]domain.OwnershipRecord, domain.DropStats) {
	var drops domain.DropStats
	records := make([]domain.OwnershipRecord, 0, len(accounts))

	for _, a := range accounts {
		if a.Owner == "" || a.Mint == "" {
			drops.Malformed++
			continue
		}
		if a.Amount == 0 {
			drops.ZeroAmount++
			continue
		}
		amount, err := normalization.NormalizeAmount(strconv.FormatUint(a.Amount, 10), &decimals)
		if err != nil {
			drops.Malformed++
			continue
		}
		records = append(records, domain.OwnershipRecord{
			TokenAccount: a.Address,
			Owner:        a.Owner,
			Mint:         a.Mint,
			Amount:       amount,
		})
	}
	return records, drops
}
