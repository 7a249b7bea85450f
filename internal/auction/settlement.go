package auction

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/numeric"
)

// SettleRequest describes a proposed buy order to size against an auction.
type SettleRequest struct {
	Pair         domain.TokenPair
	AuctionIndex uint64

	// Amount is the proposed order size in buy-token smallest units.
	Amount *big.Int

	// Account submits the order; its fee-token allowance and balance feed
	// the ledger's fee discount computation, together with the reference
	// USD price of the fee token.
	Account           common.Address
	FeeTokenAllowance *big.Int
	FeeTokenBalance   *big.Int
	ReferenceUSDPrice numeric.Fraction
}

// Settler clips proposed orders to an auction's outstanding volume and
// computes the fee-adjusted fill amount. Orders are never allowed to overfill
// an auction: an order covering the full remaining demand is clipped to
// exactly that amount and recorded as clearing the auction, and its fee is
// handled entirely by the ledger's own clearing logic.
type Settler struct {
	calc   *Calculator
	fees   domain.FeeSettler
	logger *slog.Logger
}

// NewSettler creates a Settler using the given calculator and fee collaborator.
func NewSettler(calc *Calculator, fees domain.FeeSettler, logger *slog.Logger) *Settler {
	return &Settler{
		calc:   calc,
		fees:   fees,
		logger: logger.With(slog.String("component", "settlement")),
	}
}

// SettlementAmount sizes the proposed order against the auction's current
// outstanding volume. The returned amount never exceeds the outstanding
// volume observed here, and ClosesAuction is true exactly when the proposed
// amount covers it.
func (s *Settler) SettlementAmount(ctx context.Context, req SettleRequest) (domain.SettlementResult, error) {
	if req.Amount == nil || req.Amount.Sign() < 0 {
		return domain.SettlementResult{}, fmt.Errorf("auction: settlement amount for %s/%d: %w", req.Pair, req.AuctionIndex, domain.ErrInvalidAmount)
	}

	outstanding, err := s.calc.OutstandingVolume(ctx, req.Pair, req.AuctionIndex, true)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	if req.Amount.Cmp(outstanding) >= 0 {
		s.logger.DebugContext(ctx, "order clears auction",
			slog.String("pair", req.Pair.String()),
			slog.Uint64("index", req.AuctionIndex),
			slog.String("outstanding", outstanding.String()),
		)
		return domain.SettlementResult{
			AmountAfterFee: outstanding,
			ClosesAuction:  true,
		}, nil
	}

	if req.Amount.Sign() == 0 {
		return domain.SettlementResult{
			AmountAfterFee: big.NewInt(0),
			ClosesAuction:  false,
		}, nil
	}

	afterFee, err := s.fees.SettleFee(ctx, domain.FeeSettlementRequest{
		Pair:              req.Pair,
		AuctionIndex:      req.AuctionIndex,
		Amount:            req.Amount,
		Account:           req.Account,
		FeeTokenAllowance: req.FeeTokenAllowance,
		FeeTokenBalance:   req.FeeTokenBalance,
		ReferenceUSDPrice: req.ReferenceUSDPrice,
	})
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("auction: settle fee %s/%d: %w", req.Pair, req.AuctionIndex, err)
	}

	return domain.SettlementResult{
		AmountAfterFee: afterFee,
		ClosesAuction:  false,
	}, nil
}
