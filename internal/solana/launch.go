package solana

import (
	"context"
	"fmt"
)

// Signature pagination limits of getSignaturesForAddress.
const (
	MaxSignaturesPerPage = 1000
	DefaultLaunchPages   = 20
)

// LaunchTime walks the signature history of an address backwards and returns
// the block time (ms) of the oldest signature. exhaustive is false when
// maxPages ran out before the history did; the time is then the oldest seen.
// A zero time means the address has no timed signatures.
func LaunchTime(ctx context.Context, c RPCClient, address string, maxPages int) (int64, bool, error) {
	if maxPages <= 0 {
		maxPages = DefaultLaunchPages
	}

	var (
		oldest *SignatureInfo
		before string
	)
	for page := 0; page < maxPages; page++ {
		sigs, err := c.GetSignaturesForAddress(ctx, address, &SignaturesOpts{
			Before: before,
			Limit:  MaxSignaturesPerPage,
		})
		if err != nil {
			return 0, false, fmt.Errorf("signatures page %d: %w", page, err)
		}
		if len(sigs) > 0 {
			last := sigs[len(sigs)-1]
			oldest = &last
			before = last.Signature
		}
		if len(sigs) < MaxSignaturesPerPage {
			ms, err := blockTimeMs(ctx, c, oldest)
			return ms, true, err
		}
	}

	ms, err := blockTimeMs(ctx, c, oldest)
	return ms, false, err
}

func blockTimeMs(ctx context.Context, c RPCClient, sig *SignatureInfo) (int64, error) {
	if sig == nil {
		return 0, nil
	}
	if sig.BlockTime != nil {
		return *sig.BlockTime * 1000, nil
	}
	bt, err := c.GetBlockTime(ctx, sig.Slot)
	if err != nil {
		return 0, fmt.Errorf("block time of slot %d: %w", sig.Slot, err)
	}
	if bt == nil {
		return 0, nil
	}
	return *bt * 1000, nil
}
