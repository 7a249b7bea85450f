package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/numeric"
	"github.com/dxtrader/dxbot/internal/service"
)

// AuctionHandler serves the auction status, outstanding volume, settlement,
// and history endpoints.
type AuctionHandler struct {
	svc            *service.AuctionService
	defaultAccount *common.Address
	logger         *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(svc *service.AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		svc:    svc,
		logger: logHandler(logger, "auction"),
	}
}

// WithDefaultAccount sets the operator account used for settlement requests
// that omit one.
func (h *AuctionHandler) WithDefaultAccount(addr common.Address) *AuctionHandler {
	h.defaultAccount = &addr
	return h
}

// statusResponse is the JSON shape of an auction status.
type statusResponse struct {
	Pair                string  `json:"pair"`
	AuctionIndex        uint64  `json:"auction_index"`
	SellVolume          string  `json:"sell_volume"`
	BuyVolume           string  `json:"buy_volume"`
	AuctionStart        *string `json:"auction_start,omitempty"`
	HasStarted          bool    `json:"has_started"`
	ClosingPrice        *string `json:"closing_price,omitempty"`
	IsClosed            bool    `json:"is_closed"`
	IsTheoreticalClosed bool    `json:"is_theoretical_closed"`
}

func toStatusResponse(status domain.AuctionStatus) statusResponse {
	resp := statusResponse{
		Pair:                status.Pair.String(),
		AuctionIndex:        status.Index,
		SellVolume:          status.SellVolume.String(),
		BuyVolume:           status.BuyVolume.String(),
		HasStarted:          status.HasStarted,
		IsClosed:            status.IsClosed,
		IsTheoreticalClosed: status.IsTheoreticalClosed,
	}
	if status.AuctionStart != nil {
		s := status.AuctionStart.UTC().Format(time.RFC3339)
		resp.AuctionStart = &s
	}
	if status.ClosingPrice != nil {
		p := status.ClosingPrice.String()
		resp.ClosingPrice = &p
	}
	return resp
}

// GetStatus returns the resolved status of the pair's current auction.
// GET /api/auctions/{pair}
func (h *AuctionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	pair, err := pairParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token pair")
		return
	}

	status, err := h.svc.Status(r.Context(), pair)
	if err != nil {
		h.writeDomainError(w, r, "resolve status", pair, err)
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(status))
}

// GetOutstanding returns the buy volume still needed to clear the pair's
// current auction.
// GET /api/auctions/{pair}/outstanding
func (h *AuctionHandler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	pair, err := pairParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token pair")
		return
	}

	outstanding, err := h.svc.OutstandingVolume(r.Context(), pair)
	if err != nil {
		h.writeDomainError(w, r, "outstanding volume", pair, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"pair":               pair.String(),
		"outstanding_volume": outstanding.String(),
	})
}

// settleRequest is the JSON body of a settlement computation. Amounts are
// decimal strings in smallest units; the reference price is a rational.
type settleRequest struct {
	Amount            string `json:"amount"`
	Account           string `json:"account"`
	FeeTokenAllowance string `json:"fee_token_allowance"`
	FeeTokenBalance   string `json:"fee_token_balance"`
	ReferenceUSDPrice struct {
		Num string `json:"num"`
		Den string `json:"den"`
	} `json:"reference_usd_price"`
}

// ComputeSettlement computes the effective fill for a proposed buy amount.
// POST /api/auctions/{pair}/settle
func (h *AuctionHandler) ComputeSettlement(w http.ResponseWriter, r *http.Request) {
	pair, err := pairParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token pair")
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	allowance, ok := parseUnits(req.FeeTokenAllowance)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid fee_token_allowance")
		return
	}
	balance, ok := parseUnits(req.FeeTokenBalance)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid fee_token_balance")
		return
	}
	account, err := h.settleAccount(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	refPrice := numeric.New(1, 1)
	if req.ReferenceUSDPrice.Num != "" {
		num, okNum := new(big.Int).SetString(req.ReferenceUSDPrice.Num, 10)
		den, okDen := new(big.Int).SetString(req.ReferenceUSDPrice.Den, 10)
		if !okNum || !okDen {
			writeError(w, http.StatusBadRequest, "invalid reference price")
			return
		}
		refPrice, err = numeric.FromBig(num, den)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid reference price")
			return
		}
	}

	result, err := h.svc.Settle(r.Context(), service.SettleInput{
		Pair:              pair,
		Amount:            amount,
		Account:           account,
		FeeTokenAllowance: allowance,
		FeeTokenBalance:   balance,
		ReferenceUSDPrice: refPrice,
	})
	if err != nil {
		h.writeDomainError(w, r, "settle", pair, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pair":             pair.String(),
		"amount":           amount.String(),
		"amount_after_fee": result.AmountAfterFee.String(),
		"closes_auction":   result.ClosesAuction,
	})
}

// parseUnits parses a decimal smallest-units string. An empty string means
// zero; anything else must be a valid base-10 integer.
func parseUnits(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}
	return new(big.Int).SetString(s, 10)
}

// settleAccount resolves the settlement account: the request value when
// present, otherwise the configured operator account.
func (h *AuctionHandler) settleAccount(raw string) (common.Address, error) {
	if raw == "" {
		if h.defaultAccount != nil {
			return *h.defaultAccount, nil
		}
		return common.Address{}, errors.New("missing account address")
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("invalid account address")
	}
	return common.HexToAddress(raw), nil
}

// ListSnapshots returns persisted auction observations for the pair.
// GET /api/auctions/{pair}/snapshots
func (h *AuctionHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	pair, err := pairParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token pair")
		return
	}

	records, err := h.svc.ListSnapshots(r.Context(), pair, parseListOpts(r))
	if err != nil {
		h.writeDomainError(w, r, "list snapshots", pair, err)
		return
	}
	if records == nil {
		records = []domain.SnapshotRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pair":      pair.String(),
		"snapshots": records,
	})
}

// ListSettlements returns persisted settlement computations for the pair.
// GET /api/auctions/{pair}/settlements
func (h *AuctionHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	pair, err := pairParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token pair")
		return
	}

	records, err := h.svc.ListSettlements(r.Context(), pair, parseListOpts(r))
	if err != nil {
		h.writeDomainError(w, r, "list settlements", pair, err)
		return
	}
	if records == nil {
		records = []domain.SettlementRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pair":        pair.String(),
		"settlements": records,
	})
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
func (h *AuctionHandler) writeDomainError(w http.ResponseWriter, r *http.Request, op string, pair domain.TokenPair, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTokenPair), errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown token pair")
	case errors.Is(err, domain.ErrAuctionNotRunning), errors.Is(err, domain.ErrMissingPrice):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), op+" failed",
			slog.String("pair", pair.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
