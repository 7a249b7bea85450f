package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/auction"
	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/numeric"
	"github.com/dxtrader/dxbot/internal/service"
)

// fakeLedger implements domain.AuctionRepo and domain.EthereumRepo with a
// running WETH-RDN auction: sellVolume=1000, buyVolume=400, price=1/2.
type fakeLedger struct {
	state domain.AuctionState
}

func (f *fakeLedger) SellVolume(context.Context, domain.TokenPair, time.Duration) (*big.Int, error) {
	return big.NewInt(1000), nil
}

func (f *fakeLedger) BuyVolume(context.Context, domain.TokenPair, time.Duration) (*big.Int, error) {
	return big.NewInt(400), nil
}

func (f *fakeLedger) CurrentPrice(context.Context, domain.TokenPair, uint64, time.Duration) (*numeric.Fraction, error) {
	p := numeric.New(1, 2)
	return &p, nil
}

func (f *fakeLedger) ClosingPrice(context.Context, domain.TokenPair, uint64, time.Duration) (*numeric.Fraction, error) {
	return nil, nil
}

func (f *fakeLedger) AuctionStart(context.Context, domain.TokenPair, time.Duration) (*time.Time, error) {
	start := time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	return &start, nil
}

func (f *fakeLedger) AuctionIndex(context.Context, domain.TokenPair, time.Duration) (uint64, error) {
	return 3, nil
}

func (f *fakeLedger) State(context.Context, domain.TokenPair, uint64) (domain.AuctionState, error) {
	return f.state, nil
}

func (f *fakeLedger) TokenAddress(_ context.Context, token domain.Token) (common.Address, error) {
	return common.BytesToAddress([]byte(token)), nil
}

func (f *fakeLedger) TokenInfo(_ context.Context, addr common.Address) (domain.TokenInfo, error) {
	return domain.TokenInfo{Address: addr, Decimals: 18}, nil
}

func (f *fakeLedger) Now(context.Context) (time.Time, error) {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), nil
}

type flatFeeSettler struct{}

func (flatFeeSettler) SettleFee(_ context.Context, req domain.FeeSettlementRequest) (*big.Int, error) {
	fee := new(big.Int).Div(new(big.Int).Mul(req.Amount, big.NewInt(5)), big.NewInt(1000))
	return new(big.Int).Sub(req.Amount, fee), nil
}

func newTestHandler(t *testing.T) *AuctionHandler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger := &fakeLedger{state: domain.StateRunning}
	tiers := auction.DefaultTiers()
	calc := auction.NewCalculator(ledger, ledger, tiers, logger)
	resolver := auction.NewResolver(ledger, ledger, calc, tiers, logger)
	settler := auction.NewSettler(calc, flatFeeSettler{}, logger)
	svc := service.NewAuctionService(ledger, resolver, calc, settler, nil, nil, nil, nil, logger)

	return NewAuctionHandler(svc, logger)
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	return muxFor(newTestHandler(t))
}

func muxFor(h *AuctionHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auctions/{pair}", h.GetStatus)
	mux.HandleFunc("GET /api/auctions/{pair}/outstanding", h.GetOutstanding)
	mux.HandleFunc("POST /api/auctions/{pair}/settle", h.ComputeSettlement)
	mux.HandleFunc("GET /api/auctions/{pair}/snapshots", h.ListSnapshots)
	return mux
}

func TestGetStatus(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auctions/WETH-RDN", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Pair != "WETH-RDN" || resp.AuctionIndex != 3 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !resp.HasStarted || resp.IsClosed {
		t.Errorf("unexpected lifecycle: %+v", resp)
	}
	if resp.SellVolume != "1000" || resp.BuyVolume != "400" {
		t.Errorf("unexpected volumes: %+v", resp)
	}
}

func TestGetStatusInvalidPair(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auctions/WETHRDN", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetOutstanding(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auctions/WETH-RDN/outstanding", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["outstanding_volume"] != "100" {
		t.Errorf("outstanding = %q, want 100", resp["outstanding_volume"])
	}
}

func TestComputeSettlement(t *testing.T) {
	mux := newTestMux(t)

	body := `{
		"amount": "150",
		"account": "0x96216849c49358B10257cb55b28eA603c874b05E",
		"fee_token_allowance": "0",
		"fee_token_balance": "0",
		"reference_usd_price": {"num": "1", "den": "1"}
	}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auctions/WETH-RDN/settle", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp struct {
		AmountAfterFee string `json:"amount_after_fee"`
		ClosesAuction  bool   `json:"closes_auction"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	// 150 exceeds the outstanding 100: clipped to outstanding, closes, no fee.
	if resp.AmountAfterFee != "100" || !resp.ClosesAuction {
		t.Errorf("unexpected settlement: %+v", resp)
	}
}

func TestComputeSettlementRejectsBadAmount(t *testing.T) {
	mux := newTestMux(t)

	body := `{"amount": "abc", "account": "0x96216849c49358B10257cb55b28eA603c874b05E"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auctions/WETH-RDN/settle", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestComputeSettlementRejectsBadFeeFields(t *testing.T) {
	mux := newTestMux(t)

	for _, body := range []string{
		`{"amount": "150", "account": "0x96216849c49358B10257cb55b28eA603c874b05E", "fee_token_allowance": "lots"}`,
		`{"amount": "150", "account": "0x96216849c49358B10257cb55b28eA603c874b05E", "fee_token_balance": "0x10"}`,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auctions/WETH-RDN/settle", strings.NewReader(body)))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestComputeSettlementMissingAccount(t *testing.T) {
	mux := newTestMux(t)

	body := `{"amount": "150"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auctions/WETH-RDN/settle", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestComputeSettlementFallsBackToOperatorAccount(t *testing.T) {
	h := newTestHandler(t).WithDefaultAccount(common.HexToAddress("0x96216849c49358B10257cb55b28eA603c874b05E"))
	mux := muxFor(h)

	body := `{"amount": "150"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auctions/WETH-RDN/settle", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"amount_after_fee":"100"`) {
		t.Errorf("unexpected settlement body: %s", rec.Body)
	}
}

func TestListSnapshotsWithoutStore(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auctions/WETH-RDN/snapshots", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"snapshots":[]`) {
		t.Errorf("expected empty snapshot list, got %s", rec.Body)
	}
}
