package ingestion

import (
	"strconv"

	"github.com/shopspring/decimal"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/helius"
)

// FromEnhanced maps enhanced transactions into transfer records and swap legs.
//
// Native transfers use NativeMint with 9 decimals and raw lamports. Token
// transfers take their decimals from the transaction's balance changes for the
// same mint; without them Decimals stays nil and the record is dropped later.
// Failed transactions are skipped and counted.
func FromEnhanced(txs []helius.EnhancedTransaction) *Batch {
	b := &Batch{}
	for _, tx := range txs {
		if tx.TransactionError != nil {
			b.Drops.FailedTx++
			continue
		}
		if tx.Signature == "" || tx.Timestamp <= 0 {
			b.Drops.Malformed++
			continue
		}
		ts := tx.Timestamp * 1000
		decimals := mintDecimals(tx)

		for _, nt := range tx.NativeTransfers {
			if nt.Amount < 0 {
				b.Drops.Malformed++
				continue
			}
			b.Transfers = append(b.Transfers, domain.RawTransferRecord{
				Signature:   tx.Signature,
				TimestampMs: ts,
				Mint:        domain.NativeMint,
				FromAccount: nt.FromUserAccount,
				ToAccount:   nt.ToUserAccount,
				RawAmount:   strconv.FormatInt(nt.Amount, 10),
				Decimals:    nativeDecimals(),
			})
		}

		for _, tt := range tx.TokenTransfers {
			rec := domain.RawTransferRecord{
				Signature:   tx.Signature,
				TimestampMs: ts,
				Mint:        tt.Mint,
				FromAccount: tt.FromUserAccount,
				ToAccount:   tt.ToUserAccount,
			}
			if d, ok := decimals[tt.Mint]; ok {
				dec := d
				rec.Decimals = &dec
				rec.RawAmount = toRaw(tt.TokenAmount, d)
			} else if domain.IsNativeMint(tt.Mint) {
				rec.Decimals = nativeDecimals()
				rec.RawAmount = toRaw(tt.TokenAmount, domain.NativeDecimals)
			} else {
				rec.RawAmount = decimal.NewFromFloat(tt.TokenAmount).String()
			}
			b.Transfers = append(b.Transfers, rec)
		}

		if tx.Events.Swap != nil {
			if leg, ok := swapLeg(tx, ts); ok {
				b.Swaps = append(b.Swaps, leg)
			} else {
				b.Drops.Malformed++
			}
		}
	}
	return b
}

// swapLeg pairs the primary input and output of a swap event. The owner is
// the account that supplied the input, falling back to the fee payer.
func swapLeg(tx helius.EnhancedTransaction, ts int64) (domain.SwapLeg, bool) {
	ev := tx.Events.Swap
	leg := domain.SwapLeg{
		Signature:   tx.Signature,
		TimestampMs: ts,
		Program:     tx.Source,
	}
	for _, inner := range ev.InnerSwaps {
		if inner.ProgramInfo != nil && inner.ProgramInfo.ProgramName != "" {
			leg.Program = inner.ProgramInfo.ProgramName
			break
		}
	}

	var (
		inOK, outOK bool
		payer       string
	)
	switch {
	case ev.NativeInput != nil && ev.NativeInput.Amount != "":
		payer = ev.NativeInput.Account
		leg.TokenIn = nativeSide(tx.Signature, ts, ev.NativeInput.Amount)
		leg.TokenIn.FromAccount = payer
		inOK = true
	case len(ev.TokenInputs) > 0:
		in := ev.TokenInputs[0]
		payer = in.UserAccount
		leg.TokenIn = tokenSide(tx.Signature, ts, in)
		leg.TokenIn.FromAccount = payer
		inOK = true
	}

	switch {
	case ev.NativeOutput != nil && ev.NativeOutput.Amount != "":
		leg.TokenOut = nativeSide(tx.Signature, ts, ev.NativeOutput.Amount)
		leg.TokenOut.ToAccount = ev.NativeOutput.Account
		outOK = true
	case len(ev.TokenOutputs) > 0:
		out := ev.TokenOutputs[0]
		leg.TokenOut = tokenSide(tx.Signature, ts, out)
		leg.TokenOut.ToAccount = out.UserAccount
		outOK = true
	}

	leg.Owner = payer
	if leg.Owner == "" {
		leg.Owner = tx.FeePayer
	}
	return leg, inOK && outOK
}

func nativeSide(sig string, ts int64, lamports string) domain.RawTransferRecord {
	return domain.RawTransferRecord{
		Signature:   sig,
		TimestampMs: ts,
		Mint:        domain.NativeMint,
		RawAmount:   lamports,
		Decimals:    nativeDecimals(),
	}
}

func tokenSide(sig string, ts int64, t helius.SwapToken) domain.RawTransferRecord {
	d := t.RawTokenAmount.Decimals
	return domain.RawTransferRecord{
		Signature:   sig,
		TimestampMs: ts,
		Mint:        t.Mint,
		RawAmount:   t.RawTokenAmount.TokenAmount,
		Decimals:    &d,
	}
}

// mintDecimals collects the decimals each mint reports in the transaction.
func mintDecimals(tx helius.EnhancedTransaction) map[string]int {
	out := make(map[string]int)
	for _, ad := range tx.AccountData {
		for _, c := range ad.TokenBalanceChanges {
			if c.Mint != "" {
				out[c.Mint] = c.RawTokenAmount.Decimals
			}
		}
	}
	if ev := tx.Events.Swap; ev != nil {
		for _, t := range append(append([]helius.SwapToken(nil), ev.TokenInputs...), ev.TokenOutputs...) {
			if _, ok := out[t.Mint]; !ok && t.Mint != "" {
				out[t.Mint] = t.RawTokenAmount.Decimals
			}
		}
	}
	return out
}

// toRaw converts a scaled token amount back into base units.
func toRaw(amount float64, decimals int) string {
	return decimal.NewFromFloat(amount).Shift(int32(decimals)).Round(0).String()
}

func nativeDecimals() *int {
	d := domain.NativeDecimals
	return &d
}
