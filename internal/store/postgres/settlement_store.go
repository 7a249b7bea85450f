package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dxtrader/dxbot/internal/domain"
)

// SettlementStore persists settlement computations in PostgreSQL.
type SettlementStore struct {
	client *Client
}

var _ domain.SettlementStore = (*SettlementStore)(nil)

// NewSettlementStore creates a settlement store backed by the given client.
func NewSettlementStore(client *Client) *SettlementStore {
	return &SettlementStore{client: client}
}

// Insert persists a settlement record. A missing ID is assigned a fresh UUID.
func (s *SettlementStore) Insert(ctx context.Context, rec domain.SettlementRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO settlements (
			id, sell_token, buy_token, auction_index,
			account, amount, amount_after_fee, closes_auction, signature, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.client.Pool().Exec(ctx, query,
		rec.ID,
		string(rec.Pair.Sell),
		string(rec.Pair.Buy),
		int64(rec.AuctionIndex),
		rec.Account,
		rec.Amount,
		rec.AmountAfterFee,
		rec.ClosesAuction,
		rec.Signature,
		rec.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement: %w", err)
	}
	return nil
}

// ListBefore returns all settlements computed strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error) {
	const query = `
		SELECT id, sell_token, buy_token, auction_index,
		       account, amount::TEXT, amount_after_fee::TEXT, closes_auction, signature, computed_at
		FROM settlements
		WHERE computed_at < $1
		ORDER BY computed_at ASC`

	rows, err := s.client.Pool().Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before: %w", err)
	}
	defer rows.Close()
	return scanSettlements(rows)
}

// ListByPair returns settlements for a pair, newest first.
func (s *SettlementStore) ListByPair(ctx context.Context, pair domain.TokenPair, opts domain.ListOpts) ([]domain.SettlementRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, sell_token, buy_token, auction_index,
		       account, amount::TEXT, amount_after_fee::TEXT, closes_auction, signature, computed_at
		FROM settlements
		WHERE sell_token = $1 AND buy_token = $2`
	args := []any{string(pair.Sell), string(pair.Buy)}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND computed_at >= $%d", len(args))
	}
	args = append(args, limit, opts.Offset)
	query += fmt.Sprintf(" ORDER BY computed_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()
	return scanSettlements(rows)
}

func scanSettlements(rows pgx.Rows) ([]domain.SettlementRecord, error) {
	var records []domain.SettlementRecord
	for rows.Next() {
		var (
			rec        domain.SettlementRecord
			sell, buy  string
			auctionIdx int64
		)
		if err := rows.Scan(
			&rec.ID, &sell, &buy, &auctionIdx,
			&rec.Account, &rec.Amount, &rec.AmountAfterFee, &rec.ClosesAuction, &rec.Signature, &rec.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		rec.Pair = domain.TokenPair{Sell: domain.Token(sell), Buy: domain.Token(buy)}
		rec.AuctionIndex = uint64(auctionIdx)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate settlements: %w", err)
	}
	return records, nil
}
