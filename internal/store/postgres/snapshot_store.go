package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dxtrader/dxbot/internal/domain"
)

// SnapshotStore persists auction status observations in PostgreSQL.
type SnapshotStore struct {
	client *Client
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a snapshot store backed by the given client.
func NewSnapshotStore(client *Client) *SnapshotStore {
	return &SnapshotStore{client: client}
}

// Insert persists an observation. A missing ID is assigned a fresh UUID.
func (s *SnapshotStore) Insert(ctx context.Context, rec domain.SnapshotRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO auction_snapshots (
			id, sell_token, buy_token, auction_index,
			sell_volume, buy_volume, outstanding_volume,
			has_started, is_closed, is_theoretical_closed, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.client.Pool().Exec(ctx, query,
		rec.ID,
		string(rec.Pair.Sell),
		string(rec.Pair.Buy),
		int64(rec.AuctionIndex),
		rec.SellVolume,
		rec.BuyVolume,
		rec.OutstandingVolume,
		rec.HasStarted,
		rec.IsClosed,
		rec.IsTheoreticalClosed,
		rec.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot: %w", err)
	}
	return nil
}

// ListBefore returns all observations recorded strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *SnapshotStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SnapshotRecord, error) {
	const query = `
		SELECT id, sell_token, buy_token, auction_index,
		       sell_volume::TEXT, buy_volume::TEXT, outstanding_volume::TEXT,
		       has_started, is_closed, is_theoretical_closed, observed_at
		FROM auction_snapshots
		WHERE observed_at < $1
		ORDER BY observed_at ASC`

	rows, err := s.client.Pool().Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots before: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// ListByPair returns observations for a pair, newest first.
func (s *SnapshotStore) ListByPair(ctx context.Context, pair domain.TokenPair, opts domain.ListOpts) ([]domain.SnapshotRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, sell_token, buy_token, auction_index,
		       sell_volume::TEXT, buy_volume::TEXT, outstanding_volume::TEXT,
		       has_started, is_closed, is_theoretical_closed, observed_at
		FROM auction_snapshots
		WHERE sell_token = $1 AND buy_token = $2`
	args := []any{string(pair.Sell), string(pair.Buy)}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND observed_at >= $%d", len(args))
	}
	args = append(args, limit, opts.Offset)
	query += fmt.Sprintf(" ORDER BY observed_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func scanSnapshots(rows pgx.Rows) ([]domain.SnapshotRecord, error) {
	var records []domain.SnapshotRecord
	for rows.Next() {
		var (
			rec        domain.SnapshotRecord
			sell, buy  string
			auctionIdx int64
		)
		if err := rows.Scan(
			&rec.ID, &sell, &buy, &auctionIdx,
			&rec.SellVolume, &rec.BuyVolume, &rec.OutstandingVolume,
			&rec.HasStarted, &rec.IsClosed, &rec.IsTheoreticalClosed, &rec.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		rec.Pair = domain.TokenPair{Sell: domain.Token(sell), Buy: domain.Token(buy)}
		rec.AuctionIndex = uint64(auctionIdx)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate snapshots: %w", err)
	}
	return records, nil
}
