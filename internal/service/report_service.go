package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/dxtrader/dxbot/internal/domain"
)

// ReportUploader is the narrow blob interface the report service requires.
// The S3 writer satisfies it.
type ReportUploader interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// ReportService renders persisted observations as CSV reports and uploads
// them to the blob store.
type ReportService struct {
	snapshots   domain.SnapshotStore
	settlements domain.SettlementStore
	uploader    ReportUploader
	logger      *slog.Logger
}

// NewReportService creates a ReportService.
func NewReportService(snapshots domain.SnapshotStore, settlements domain.SettlementStore, uploader ReportUploader, logger *slog.Logger) *ReportService {
	return &ReportService{
		snapshots:   snapshots,
		settlements: settlements,
		uploader:    uploader,
		logger:      logger.With(slog.String("component", "report_service")),
	}
}

// SnapshotReport renders all snapshots for a pair since the given time as CSV
// and uploads it to reports/snapshots/<pair>/<date>.csv. It returns the blob
// path and the number of data rows written.
func (r *ReportService) SnapshotReport(ctx context.Context, pair domain.TokenPair, since time.Time) (string, int, error) {
	records, err := r.snapshots.ListByPair(ctx, pair, domain.ListOpts{Since: &since, Limit: 10000})
	if err != nil {
		return "", 0, fmt.Errorf("report_service: list snapshots for %s: %w", pair, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"id", "pair", "auction_index",
		"sell_volume", "buy_volume", "outstanding_volume",
		"has_started", "is_closed", "is_theoretical_closed", "observed_at",
	}
	if err := w.Write(header); err != nil {
		return "", 0, fmt.Errorf("report_service: write header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.Pair.String(),
			strconv.FormatUint(rec.AuctionIndex, 10),
			rec.SellVolume,
			rec.BuyVolume,
			rec.OutstandingVolume,
			strconv.FormatBool(rec.HasStarted),
			strconv.FormatBool(rec.IsClosed),
			strconv.FormatBool(rec.IsTheoreticalClosed),
			rec.ObservedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", 0, fmt.Errorf("report_service: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", 0, fmt.Errorf("report_service: flush csv: %w", err)
	}

	path := reportPath("snapshots", pair, time.Now().UTC())
	if err := r.uploader.Put(ctx, path, bytes.NewReader(buf.Bytes()), "text/csv"); err != nil {
		return "", 0, fmt.Errorf("report_service: upload %s: %w", path, err)
	}

	r.logger.InfoContext(ctx, "snapshot report uploaded",
		slog.String("path", path),
		slog.Int("rows", len(records)),
	)
	return path, len(records), nil
}

// SettlementReport renders all settlements for a pair since the given time as
// CSV and uploads it to reports/settlements/<pair>/<date>.csv.
func (r *ReportService) SettlementReport(ctx context.Context, pair domain.TokenPair, since time.Time) (string, int, error) {
	records, err := r.settlements.ListByPair(ctx, pair, domain.ListOpts{Since: &since, Limit: 10000})
	if err != nil {
		return "", 0, fmt.Errorf("report_service: list settlements for %s: %w", pair, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{
		"id", "pair", "auction_index", "account",
		"amount", "amount_after_fee", "closes_auction", "computed_at",
	}
	if err := w.Write(header); err != nil {
		return "", 0, fmt.Errorf("report_service: write header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.Pair.String(),
			strconv.FormatUint(rec.AuctionIndex, 10),
			rec.Account,
			rec.Amount,
			rec.AmountAfterFee,
			strconv.FormatBool(rec.ClosesAuction),
			rec.ComputedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", 0, fmt.Errorf("report_service: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", 0, fmt.Errorf("report_service: flush csv: %w", err)
	}

	path := reportPath("settlements", pair, time.Now().UTC())
	if err := r.uploader.Put(ctx, path, bytes.NewReader(buf.Bytes()), "text/csv"); err != nil {
		return "", 0, fmt.Errorf("report_service: upload %s: %w", path, err)
	}

	r.logger.InfoContext(ctx, "settlement report uploaded",
		slog.String("path", path),
		slog.Int("rows", len(records)),
	)
	return path, len(records), nil
}

// reportPath builds the blob key for a report, e.g.
// reports/snapshots/WETH-RDN/2026-08-29.csv.
func reportPath(kind string, pair domain.TokenPair, at time.Time) string {
	return fmt.Sprintf("reports/%s/%s/%s.csv", kind, pair, at.Format("2006-01-02"))
}
