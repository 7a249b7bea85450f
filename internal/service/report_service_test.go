package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dxtrader/dxbot/internal/domain"
)

type fakeUploader struct {
	path        string
	contentType string
	body        string
	calls       int
}

func (f *fakeUploader) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	body, _ := io.ReadAll(data)
	f.path = path
	f.contentType = contentType
	f.body = string(body)
	f.calls++
	return nil
}

func TestSnapshotReport(t *testing.T) {
	pair := pairWETHRDN(t)
	snaps := &memSnapshotStore{records: []domain.SnapshotRecord{
		{
			ID:                "snap-1",
			Pair:              pair,
			AuctionIndex:      3,
			SellVolume:        "1000",
			BuyVolume:         "400",
			OutstandingVolume: "100",
			HasStarted:        true,
			ObservedAt:        time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		},
	}}
	up := &fakeUploader{}
	r := NewReportService(snaps, &memSettlementStore{}, up, testLogger())

	path, rows, err := r.SnapshotReport(context.Background(), pair, time.Time{})
	if err != nil {
		t.Fatalf("SnapshotReport: %v", err)
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1", rows)
	}
	if !strings.HasPrefix(path, "reports/snapshots/WETH-RDN/") || !strings.HasSuffix(path, ".csv") {
		t.Errorf("unexpected path %q", path)
	}
	if up.contentType != "text/csv" {
		t.Errorf("content type = %q", up.contentType)
	}

	lines := strings.Split(strings.TrimSpace(up.body), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want 2 (header + row)", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,pair,auction_index") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "snap-1,WETH-RDN,3,1000,400,100,true") {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestSettlementReport(t *testing.T) {
	pair := pairWETHRDN(t)
	setts := &memSettlementStore{records: []domain.SettlementRecord{
		{
			ID:             "set-1",
			Pair:           pair,
			AuctionIndex:   3,
			Account:        "0xabc",
			Amount:         "50",
			AmountAfterFee: "49",
			ComputedAt:     time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		},
	}}
	up := &fakeUploader{}
	r := NewReportService(&memSnapshotStore{}, setts, up, testLogger())

	path, rows, err := r.SettlementReport(context.Background(), pair, time.Time{})
	if err != nil {
		t.Fatalf("SettlementReport: %v", err)
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1", rows)
	}
	if !strings.HasPrefix(path, "reports/settlements/WETH-RDN/") {
		t.Errorf("unexpected path %q", path)
	}
	if !strings.Contains(up.body, "set-1,WETH-RDN,3,0xabc,50,49,false") {
		t.Errorf("unexpected body %q", up.body)
	}
}

func TestSnapshotReportEmptyStillUploadsHeader(t *testing.T) {
	up := &fakeUploader{}
	r := NewReportService(&memSnapshotStore{}, &memSettlementStore{}, up, testLogger())

	_, rows, err := r.SnapshotReport(context.Background(), pairWETHRDN(t), time.Time{})
	if err != nil {
		t.Fatalf("SnapshotReport: %v", err)
	}
	if rows != 0 {
		t.Errorf("rows = %d, want 0", rows)
	}
	if up.calls != 1 {
		t.Fatalf("uploads = %d, want 1", up.calls)
	}
	if !strings.HasPrefix(up.body, "id,pair,") {
		t.Errorf("expected header-only csv, got %q", up.body)
	}
}
