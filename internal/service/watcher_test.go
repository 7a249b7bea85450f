package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dxtrader/dxbot/internal/domain"
)

func TestWatcherSnapshotsEveryPairOnFirstTick(t *testing.T) {
	f := newFixture()
	runningAuction(f)
	pair := pairWETHRDN(t)

	w := NewWatcher(f.svc, []domain.TokenPair{pair}, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		records, _ := f.snapshots.ListByPair(context.Background(), pair, domain.ListOpts{})
		if len(records) >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no snapshot recorded before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}
