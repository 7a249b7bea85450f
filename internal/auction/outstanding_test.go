package auction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/numeric"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLedger implements domain.AuctionRepo and domain.EthereumRepo from
// in-memory values, counting reads per quantity.
type fakeLedger struct {
	mu sync.Mutex

	sellVolume   *big.Int
	buyVolume    *big.Int
	price        *numeric.Fraction
	closingPrice *numeric.Fraction
	start        *time.Time
	now          time.Time
	state        domain.AuctionState
	decimals     map[common.Address]uint8
	symbols      map[common.Address]string

	stateErr error
	readErr  error
	calls    map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		sellVolume: big.NewInt(0),
		buyVolume:  big.NewInt(0),
		now:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		state:      domain.StateRunning,
		decimals:   make(map[common.Address]uint8),
		symbols:    make(map[common.Address]string),
		calls:      make(map[string]int),
	}
}

func (f *fakeLedger) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeLedger) SellVolume(ctx context.Context, pair domain.TokenPair, ttl time.Duration) (*big.Int, error) {
	f.record("sell_volume")
	if f.readErr != nil {
		return nil, f.readErr
	}
	return new(big.Int).Set(f.sellVolume), nil
}

func (f *fakeLedger) BuyVolume(ctx context.Context, pair domain.TokenPair, ttl time.Duration) (*big.Int, error) {
	f.record("buy_volume")
	if f.readErr != nil {
		return nil, f.readErr
	}
	return new(big.Int).Set(f.buyVolume), nil
}

func (f *fakeLedger) CurrentPrice(ctx context.Context, pair domain.TokenPair, index uint64, ttl time.Duration) (*numeric.Fraction, error) {
	f.record("current_price")
	return f.price, nil
}

func (f *fakeLedger) ClosingPrice(ctx context.Context, pair domain.TokenPair, index uint64, ttl time.Duration) (*numeric.Fraction, error) {
	f.record("closing_price")
	return f.closingPrice, nil
}

func (f *fakeLedger) AuctionStart(ctx context.Context, pair domain.TokenPair, ttl time.Duration) (*time.Time, error) {
	f.record("auction_start")
	return f.start, nil
}

func (f *fakeLedger) AuctionIndex(ctx context.Context, pair domain.TokenPair, ttl time.Duration) (uint64, error) {
	f.record("auction_index")
	return 1, nil
}

func (f *fakeLedger) State(ctx context.Context, pair domain.TokenPair, index uint64) (domain.AuctionState, error) {
	f.record("state")
	if f.stateErr != nil {
		return domain.StateUnknown, f.stateErr
	}
	return f.state, nil
}

func (f *fakeLedger) TokenAddress(ctx context.Context, token domain.Token) (common.Address, error) {
	f.record("token_address")
	return tokenAddr(token), nil
}

func (f *fakeLedger) TokenInfo(ctx context.Context, addr common.Address) (domain.TokenInfo, error) {
	f.record("token_info")
	return domain.TokenInfo{
		Address:  addr,
		Decimals: f.decimals[addr],
		Symbol:   f.symbols[addr],
	}, nil
}

func (f *fakeLedger) Now(ctx context.Context) (time.Time, error) {
	f.record("now")
	return f.now, nil
}

// setToken registers decimals for a token symbol at its derived address.
func (f *fakeLedger) setToken(token domain.Token, decimals uint8) {
	addr := tokenAddr(token)
	f.decimals[addr] = decimals
	f.symbols[addr] = string(token)
}

func tokenAddr(token domain.Token) common.Address {
	return common.BytesToAddress([]byte(token))
}

var (
	_ domain.AuctionRepo  = (*fakeLedger)(nil)
	_ domain.EthereumRepo = (*fakeLedger)(nil)
)

func pairWETHRDN(t *testing.T) domain.TokenPair {
	t.Helper()
	pair, err := domain.NewTokenPair("WETH", "RDN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return pair
}

func TestOutstanding_EqualDecimals(t *testing.T) {
	// sellVolume=1000, buyVolume=400, price=1/2 -> inBuyUnits=500, out=100.
	got := Outstanding(big.NewInt(1000), big.NewInt(400), numeric.New(1, 2), 18, 18)
	if got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("outstanding = %s, want 100", got)
	}
}

func TestOutstanding_DecimalNormalization(t *testing.T) {
	// 18-decimal sell token, 6-decimal buy token: scale by 10^(6-18).
	sell := new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	got := Outstanding(sell, big.NewInt(0), numeric.New(1, 1), 18, 6)
	want := new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(6), nil))
	if got.Cmp(want) != 0 {
		t.Errorf("outstanding = %s, want %s", got, want)
	}
}

func TestOutstanding_ClampsNegative(t *testing.T) {
	// Buy side over-filled relative to a stale sell read: clamp, not error.
	got := Outstanding(big.NewInt(100), big.NewInt(900), numeric.New(1, 1), 18, 18)
	if got.Sign() != 0 {
		t.Errorf("outstanding = %s, want 0", got)
	}
}

func TestOutstanding_ZeroSellVolume(t *testing.T) {
	got := Outstanding(big.NewInt(0), big.NewInt(5), numeric.New(1, 1), 18, 18)
	if got.Sign() != 0 {
		t.Errorf("outstanding = %s, want 0", got)
	}
}

func TestOutstandingVolume_WaitingStateFailsFast(t *testing.T) {
	ledger := newFakeLedger()
	ledger.state = domain.StateWaitingForAuctionToStart

	calc := NewCalculator(ledger, ledger, DefaultTiers(), testLogger())
	_, err := calc.OutstandingVolume(context.Background(), pairWETHRDN(t), 1, true)
	if !errors.Is(err, domain.ErrAuctionNotRunning) {
		t.Fatalf("got %v, want ErrAuctionNotRunning", err)
	}

	// Fails fast: no volume reads after the precondition failure.
	if ledger.calls["sell_volume"] != 0 || ledger.calls["buy_volume"] != 0 {
		t.Error("volume reads issued despite precondition failure")
	}
}

func TestOutstandingVolume_MissingPrice(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sellVolume = big.NewInt(1000)
	ledger.setToken("WETH", 18)
	ledger.setToken("RDN", 18)

	calc := NewCalculator(ledger, ledger, DefaultTiers(), testLogger())
	_, err := calc.OutstandingVolume(context.Background(), pairWETHRDN(t), 1, false)
	if !errors.Is(err, domain.ErrMissingPrice) {
		t.Fatalf("got %v, want ErrMissingPrice", err)
	}
}

func TestOutstandingVolume_EndToEnd(t *testing.T) {
	ledger := newFakeLedger()
	ledger.sellVolume = big.NewInt(1000)
	ledger.buyVolume = big.NewInt(400)
	price := numeric.New(1, 2)
	ledger.price = &price
	ledger.setToken("WETH", 18)
	ledger.setToken("RDN", 18)

	calc := NewCalculator(ledger, ledger, DefaultTiers(), testLogger())
	got, err := calc.OutstandingVolume(context.Background(), pairWETHRDN(t), 1, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("outstanding = %s, want 100", got)
	}
	if got.Sign() < 0 {
		t.Error("outstanding volume must never be negative")
	}
}

func TestOutstandingVolume_CollaboratorFailurePropagates(t *testing.T) {
	ledger := newFakeLedger()
	sentinel := errors.New("rpc timeout")
	ledger.readErr = sentinel
	price := numeric.New(1, 2)
	ledger.price = &price

	calc := NewCalculator(ledger, ledger, DefaultTiers(), testLogger())
	_, err := calc.OutstandingVolume(context.Background(), pairWETHRDN(t), 1, false)
	if !errors.Is(err, sentinel) {
		t.Fatalf("got %v, want wrapped %v", err, sentinel)
	}
}
