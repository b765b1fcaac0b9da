package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/idhash"
	"onchain-analytics/internal/storage"
)

// TradeEventStore implements storage.TradeEventStore using ClickHouse.
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

// InsertBulk appends events for wallet in one batch.
// ReplacingMergeTree keeps the row with the latest computed_at_ms per event id.
func (s *TradeEventStore) InsertBulk(ctx context.Context, wallet string, computedAtMs int64, events []domain.TradeEvent) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_events (
			event_id, wallet, signature, timestamp_ms, mint, kind, source,
			token_amount, sol_amount, price_per_token, counter_mint, counter_amount,
			suspect, computed_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			idhash.EventID(e), wallet, e.Signature, e.TimestampMs, e.Mint,
			string(e.Kind), string(e.Source),
			e.TokenAmount, e.SolAmount, e.PricePerToken, e.CounterMint, e.CounterAmount,
			boolToUInt8(e.Suspect), computedAtMs,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByWallet retrieves the latest version of every event of a wallet, ordered by timestamp ASC.
func (s *TradeEventStore) GetByWallet(ctx context.Context, wallet string) ([]domain.TradeEvent, error) {
	query := `
		SELECT signature, timestamp_ms, wallet, mint, kind, source,
			token_amount, sol_amount, price_per_token, counter_mint, counter_amount, suspect
		FROM trade_events FINAL
		WHERE wallet = ?
		ORDER BY timestamp_ms ASC, signature ASC
	`

	rows, err := s.conn.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("query by wallet: %w", err)
	}
	defer rows.Close()

	return scanTradeEvents(rows)
}

func scanTradeEvents(rows driver.Rows) ([]domain.TradeEvent, error) {
	var result []domain.TradeEvent
	for rows.Next() {
		var (
			e            domain.TradeEvent
			kind, source string
			suspect      uint8
		)
		err := rows.Scan(
			&e.Signature, &e.TimestampMs, &e.Wallet, &e.Mint, &kind, &source,
			&e.TokenAmount, &e.SolAmount, &e.PricePerToken, &e.CounterMint, &e.CounterAmount, &suspect,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade event: %w", err)
		}
		e.Kind = domain.TradeKind(kind)
		e.Source = domain.TradeSource(source)
		e.Suspect = suspect == 1
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade events: %w", err)
	}
	return result, nil
}
