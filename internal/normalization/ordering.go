package normalization

import (
	"errors"
	"slices"

	"onchain-analytics/internal/domain"
)

// ErrInvalidOrdering is returned when events are not in deterministic order.
var ErrInvalidOrdering = errors.New("trade events are not in deterministic order")

// SortEvents orders events by (timestamp ASC, signature ASC, mint ASC, kind ASC).
// Timestamp and signature give the chain order; mint and kind break ties
// between events derived from the same transaction.
func SortEvents(events []domain.TradeEvent) {
	slices.SortStableFunc(events, CompareEvents)
}

// ValidateEventOrdering checks that events are sorted by CompareEvents.
func ValidateEventOrdering(events []domain.TradeEvent) error {
	for i := 1; i < len(events); i++ {
		if CompareEvents(events[i-1], events[i]) > 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// CompareEvents returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func CompareEvents(a, b domain.TradeEvent) int {
	if a.TimestampMs != b.TimestampMs {
		if a.TimestampMs < b.TimestampMs {
			return -1
		}
		return 1
	}
	if a.Signature != b.Signature {
		if a.Signature < b.Signature {
			return -1
		}
		return 1
	}
	if a.Mint != b.Mint {
		if a.Mint < b.Mint {
			return -1
		}
		return 1
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	return 0
}
