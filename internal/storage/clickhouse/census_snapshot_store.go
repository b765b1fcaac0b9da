package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"onchain-analytics/internal/domain"
	"onchain-analytics/internal/storage"
)

// CensusSnapshotStore implements storage.CensusSnapshotStore using ClickHouse.
type CensusSnapshotStore struct {
	conn *Conn
}

// NewCensusSnapshotStore creates a new CensusSnapshotStore.
func NewCensusSnapshotStore(conn *Conn) *CensusSnapshotStore {
	return &CensusSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CensusSnapshotStore = (*CensusSnapshotStore)(nil)

const censusColumns = `
	mint, computed_at_ms, total_supply, reported_supply, supply_adjusted,
	total_holder_count, top10_concentration_percent, dust_owners_dropped,
	malformed_dropped, program_owned_holders, holders
`

// Insert appends a census snapshot.
func (s *CensusSnapshotStore) Insert(ctx context.Context, c *domain.Census) error {
	if c == nil || c.Mint == "" {
		return storage.ErrInvalidInput
	}

	holders, err := json.Marshal(c.Holders)
	if err != nil {
		return fmt.Errorf("encode holders: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO census_snapshots (`+censusColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		c.Mint, c.ComputedAtMs, c.TotalSupply, c.ReportedSupply, boolToUInt8(c.SupplyAdjusted),
		uint32(c.TotalHolderCount), c.Top10ConcentrationPercent, uint32(c.DustOwnersDropped),
		uint32(c.MalformedDropped), uint32(c.ProgramOwnedHolders), string(holders),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent snapshot of a mint. Returns ErrNotFound if none.
func (s *CensusSnapshotStore) GetLatest(ctx context.Context, mint string) (*domain.Census, error) {
	query := `SELECT ` + censusColumns + `
		FROM census_snapshots
		WHERE mint = ?
		ORDER BY computed_at_ms DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query latest census: %w", err)
	}
	defer rows.Close()

	snaps, err := scanCensuses(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return snaps[0], nil
}

// GetByTimeRange retrieves snapshots computed within [start, end] (inclusive).
func (s *CensusSnapshotStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.Census, error) {
	query := `SELECT ` + censusColumns + `
		FROM census_snapshots
		WHERE mint = ? AND computed_at_ms >= ? AND computed_at_ms <= ?
		ORDER BY computed_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, start, end)
	if err != nil {
		return nil, fmt.Errorf("query census by time range: %w", err)
	}
	defer rows.Close()

	return scanCensuses(rows)
}

func scanCensuses(rows driver.Rows) ([]*domain.Census, error) {
	var result []*domain.Census
	for rows.Next() {
		var (
			c                                     domain.Census
			adjusted                              uint8
			holderCount, dust, malformed, program uint32
			holders                               string
		)
		err := rows.Scan(
			&c.Mint, &c.ComputedAtMs, &c.TotalSupply, &c.ReportedSupply, &adjusted,
			&holderCount, &c.Top10ConcentrationPercent, &dust,
			&malformed, &program, &holders,
		)
		if err != nil {
			return nil, fmt.Errorf("scan census: %w", err)
		}
		if err := json.Unmarshal([]byte(holders), &c.Holders); err != nil {
			return nil, fmt.Errorf("decode holders of %s: %w", c.Mint, err)
		}
		c.SupplyAdjusted = adjusted == 1
		c.TotalHolderCount = int(holderCount)
		c.DustOwnersDropped = int(dust)
		c.MalformedDropped = int(malformed)
		c.ProgramOwnedHolders = int(program)
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate census snapshots: %w", err)
	}
	return result, nil
}
