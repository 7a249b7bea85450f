package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/numeric"
)

// FeeSettler implements domain.FeeSettler against the exchange contract's fee
// schedule. The base fee ratio is account specific (high-volume accounts get
// discounts); up to half of the fee can additionally be paid in the fee token,
// bounded by the account's usable fee-token funds valued at the reference USD
// price of the buy token.
type FeeSettler struct {
	repo *Repo
}

// NewFeeSettler creates a FeeSettler sharing the exchange binding of repo.
func NewFeeSettler(repo *Repo) *FeeSettler {
	return &FeeSettler{repo: repo}
}

// SettleFee returns the fee-adjusted fill amount for a partial order.
func (f *FeeSettler) SettleFee(ctx context.Context, req domain.FeeSettlementRequest) (*big.Int, error) {
	var num, den *big.Int
	if err := f.repo.exchange.call(ctx, "getFeeRatio", []any{&num, &den}, req.Account); err != nil {
		return nil, fmt.Errorf("ledger: fee ratio for %s: %w", req.Account.Hex(), err)
	}
	ratio, err := numeric.FromBig(num, den)
	if err != nil {
		return nil, fmt.Errorf("ledger: fee ratio for %s: %w", req.Account.Hex(), err)
	}

	amount := numeric.FromInt(req.Amount)
	fee := amount.Mul(ratio)

	// Usable fee tokens: limited by both allowance and balance. The fee
	// token is USD-pegged, so the reference USD price of the buy token
	// converts it into buy-token units.
	usable := req.FeeTokenAllowance
	if req.FeeTokenBalance.Cmp(usable) < 0 {
		usable = req.FeeTokenBalance
	}

	covered := numeric.New(0, 1)
	if usable.Sign() > 0 && !req.ReferenceUSDPrice.IsZero() {
		coverage, err := numeric.FromInt(usable).Div(req.ReferenceUSDPrice)
		if err != nil {
			return nil, fmt.Errorf("ledger: fee coverage: %w", err)
		}
		// The fee token pays at most half the fee.
		half, err := fee.Div(numeric.New(2, 1))
		if err != nil {
			return nil, fmt.Errorf("ledger: fee halving: %w", err)
		}
		if coverage.Cmp(half) > 0 {
			coverage = half
		}
		covered = coverage
	}

	remaining := fee.Sub(covered).ClampNonNegative()
	after := amount.Sub(remaining).ClampNonNegative().Floor()
	return after, nil
}

var _ domain.FeeSettler = (*FeeSettler)(nil)
