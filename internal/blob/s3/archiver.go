package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dxtrader/dxbot/internal/domain"
)

// ObjectWriter is the narrow upload interface the archiver requires.
// *Writer satisfies it.
type ObjectWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// SnapshotArchiveStore provides read access to old snapshots for archival.
type SnapshotArchiveStore interface {
	// ListBefore returns all snapshots observed strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.SnapshotRecord, error)
}

// SettlementArchiveStore provides read access to old settlements for archival.
type SettlementArchiveStore interface {
	// ListBefore returns all settlements computed strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error)
}

// Archiver moves aged store records into S3 as JSONL files, partitioned by
// the year-month of the cutoff.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type Archiver struct {
	writer      ObjectWriter
	snapshots   SnapshotArchiveStore
	settlements SettlementArchiveStore
	logger      *slog.Logger
}

// NewArchiver creates an Archiver over the given writer and stores.
func NewArchiver(writer ObjectWriter, snapshots SnapshotArchiveStore, settlements SettlementArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:      writer,
		snapshots:   snapshots,
		settlements: settlements,
		logger:      logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSnapshots uploads all snapshots observed before the cutoff to
// archive/snapshots/YYYY-MM.jsonl and returns the archived record count.
func (a *Archiver) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.snapshots.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := archivePath("snapshots", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}

	a.logger.InfoContext(ctx, "snapshots archived",
		slog.String("path", path),
		slog.Int("count", len(records)),
	)
	return int64(len(records)), nil
}

// ArchiveSettlements uploads all settlements computed before the cutoff to
// archive/settlements/YYYY-MM.jsonl and returns the archived record count.
func (a *Archiver) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.settlements.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	path := archivePath("settlements", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	a.logger.InfoContext(ctx, "settlements archived",
		slog.String("path", path),
		slog.Int("count", len(records)),
	)
	return int64(len(records)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time, e.g. archive/snapshots/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
