package normalization

import (
	"errors"

	"github.com/shopspring/decimal"

	"onchain-analytics/internal/domain"
)

// maxDecimals bounds the decimals field; SPL mints use at most 9 in practice.
const maxDecimals = 18

var (
	errMissingDecimals = errors.New("decimals missing")
	errBadDecimals     = errors.New("decimals out of range")
	errBadAmount       = errors.New("raw amount is not a non-negative integer")
	errMissingTime     = errors.New("timestamp missing")
)

// NormalizeAmount converts a raw integer amount into whole units using decimals.
// The division is exact; conversion to float64 happens last.
func NormalizeAmount(raw string, decimals *int) (float64, error) {
	if decimals == nil {
		return 0, errMissingDecimals
	}
	if *decimals < 0 || *decimals > maxDecimals {
		return 0, errBadDecimals
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return 0, errBadAmount
	}
	f, _ := d.Shift(-int32(*decimals)).Float64()
	return f, nil
}

// recordAmount validates the record's required fields and returns its normalized amount.
func recordAmount(r domain.RawTransferRecord) (float64, error) {
	if r.TimestampMs <= 0 {
		return 0, errMissingTime
	}
	return NormalizeAmount(r.RawAmount, r.Decimals)
}
