package ledger

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/memo"
	"github.com/dxtrader/dxbot/internal/numeric"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingRepo serves fixed values and counts reads per method.
type countingRepo struct {
	sellReads  int32
	buyReads   int32
	priceReads int32
}

func (r *countingRepo) SellVolume(ctx context.Context, pair domain.TokenPair, _ time.Duration) (*big.Int, error) {
	atomic.AddInt32(&r.sellReads, 1)
	return big.NewInt(1000), nil
}

func (r *countingRepo) BuyVolume(ctx context.Context, pair domain.TokenPair, _ time.Duration) (*big.Int, error) {
	atomic.AddInt32(&r.buyReads, 1)
	return big.NewInt(400), nil
}

func (r *countingRepo) CurrentPrice(ctx context.Context, pair domain.TokenPair, index uint64, _ time.Duration) (*numeric.Fraction, error) {
	atomic.AddInt32(&r.priceReads, 1)
	f := numeric.New(1, 2)
	return &f, nil
}

func (r *countingRepo) ClosingPrice(ctx context.Context, pair domain.TokenPair, index uint64, _ time.Duration) (*numeric.Fraction, error) {
	return nil, nil
}

func (r *countingRepo) AuctionStart(ctx context.Context, pair domain.TokenPair, _ time.Duration) (*time.Time, error) {
	return nil, nil
}

func (r *countingRepo) AuctionIndex(ctx context.Context, pair domain.TokenPair, _ time.Duration) (uint64, error) {
	return 1, nil
}

func (r *countingRepo) State(ctx context.Context, pair domain.TokenPair, index uint64) (domain.AuctionState, error) {
	return domain.StateRunning, nil
}

func (r *countingRepo) TokenAddress(ctx context.Context, token domain.Token) (common.Address, error) {
	return common.BytesToAddress([]byte(token)), nil
}

var _ domain.AuctionRepo = (*countingRepo)(nil)

func testPair(t *testing.T) domain.TokenPair {
	t.Helper()
	pair, err := domain.NewTokenPair("WETH", "RDN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pair
}

func TestCachedAuctionRepo_ReadsOncePerTTLWindow(t *testing.T) {
	svc := memo.NewService(testLogger())
	defer svc.Close()

	inner := &countingRepo{}
	cached := NewCachedAuctionRepo(inner, svc, CacheConfig{
		Short:   time.Minute,
		Average: time.Minute,
	}, testLogger())

	pair := testPair(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := cached.BuyVolume(ctx, pair, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := cached.SellVolume(ctx, pair, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := cached.CurrentPrice(ctx, pair, 1, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n := atomic.LoadInt32(&inner.buyReads); n != 1 {
		t.Errorf("buy volume read %d times within TTL, want 1", n)
	}
	if n := atomic.LoadInt32(&inner.sellReads); n != 1 {
		t.Errorf("sell volume read %d times within TTL, want 1", n)
	}
	if n := atomic.LoadInt32(&inner.priceReads); n != 1 {
		t.Errorf("price read %d times within TTL, want 1", n)
	}
}

func TestCachedAuctionRepo_TTLOverride(t *testing.T) {
	svc := memo.NewService(testLogger())
	defer svc.Close()

	inner := &countingRepo{}
	cached := NewCachedAuctionRepo(inner, svc, CacheConfig{
		Short:   time.Minute,
		Average: time.Minute,
	}, testLogger())

	pair := testPair(t)
	ctx := context.Background()

	// A caller trading read volume for freshness passes a tiny TTL.
	if _, err := cached.BuyVolume(ctx, pair, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cached.BuyVolume(ctx, pair, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := atomic.LoadInt32(&inner.buyReads); n != 2 {
		t.Errorf("buy volume read %d times across expired windows, want 2", n)
	}
}

func TestCachedAuctionRepo_DistinctKeysPerQuantity(t *testing.T) {
	svc := memo.NewService(testLogger())
	defer svc.Close()

	inner := &countingRepo{}
	cached := NewCachedAuctionRepo(inner, svc, CacheConfig{
		Short:   time.Minute,
		Average: time.Minute,
	}, testLogger())

	pair := testPair(t)
	ctx := context.Background()

	sell, err := cached.SellVolume(ctx, pair, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buy, err := cached.BuyVolume(ctx, pair, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same cache, different keys: values must not collide.
	if sell.Cmp(big.NewInt(1000)) != 0 || buy.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("sell=%s buy=%s, want 1000/400", sell, buy)
	}
}
