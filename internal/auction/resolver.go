package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/numeric"
)

// Resolver classifies an auction's lifecycle from raw ledger reads. It
// reports two independent closing signals: the ledger's authoritative record
// (IsClosed) and the zero-outstanding-demand condition (IsTheoreticalClosed)
// that precedes the clearing transaction.
type Resolver struct {
	auctions domain.AuctionRepo
	ethereum domain.EthereumRepo
	calc     *Calculator
	tiers    CacheTiers
	logger   *slog.Logger
}

// NewResolver creates a Resolver sharing the outstanding-volume calculator so
// both draw from the same memoized ledger reads.
func NewResolver(auctions domain.AuctionRepo, ethereum domain.EthereumRepo, calc *Calculator, tiers CacheTiers, logger *slog.Logger) *Resolver {
	return &Resolver{
		auctions: auctions,
		ethereum: ethereum,
		calc:     calc,
		tiers:    tiers,
		logger:   logger.With(slog.String("component", "state_resolver")),
	}
}

// Resolve returns a fresh AuctionStatus snapshot for the given pair and
// auction index. Timing uses ledger time, which may lag wall-clock time.
func (r *Resolver) Resolve(ctx context.Context, pair domain.TokenPair, index uint64) (domain.AuctionStatus, error) {
	var (
		sellVolume, buyVolume *big.Int
		price                 *numeric.Fraction
		start                 *time.Time
		now                   time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sellVolume, err = r.auctions.SellVolume(gctx, pair, r.tiers.Average)
		return err
	})
	g.Go(func() (err error) {
		buyVolume, err = r.auctions.BuyVolume(gctx, pair, r.tiers.Short)
		return err
	})
	g.Go(func() (err error) {
		price, err = r.auctions.CurrentPrice(gctx, pair, index, r.tiers.Short)
		return err
	})
	g.Go(func() (err error) {
		start, err = r.auctions.AuctionStart(gctx, pair, r.tiers.Average)
		return err
	})
	g.Go(func() (err error) {
		now, err = r.ethereum.Now(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.AuctionStatus{}, fmt.Errorf("auction: resolve reads %s/%d: %w", pair, index, err)
	}

	hasStarted := start != nil && start.Before(now)

	// Theoretical closing only makes sense for a priced, running auction.
	// A started zero-supply auction has no meaningful price, and we keep
	// treating it as not theoretically closed; the explicit closing signal
	// below covers it.
	theoreticalClosed := false
	if price != nil && hasStarted {
		outstanding, err := r.calc.OutstandingVolume(ctx, pair, index, false)
		if err != nil && !errors.Is(err, domain.ErrMissingPrice) {
			return domain.AuctionStatus{}, fmt.Errorf("auction: resolve outstanding %s/%d: %w", pair, index, err)
		}
		theoreticalClosed = err == nil && outstanding.Sign() == 0
	}

	closingPrice, err := r.auctions.ClosingPrice(ctx, pair, index, r.tiers.Average)
	if err != nil {
		return domain.AuctionStatus{}, fmt.Errorf("auction: closing price %s/%d: %w", pair, index, err)
	}

	// Two independent, non-exclusive closing signals: an auction that
	// started with zero supply is closed from inception; otherwise only a
	// recorded clearing event closes it.
	var closed bool
	if sellVolume.Sign() == 0 {
		closed = hasStarted
	} else {
		closed = closingPrice != nil
	}

	status := domain.AuctionStatus{
		Pair:                pair,
		Index:               index,
		SellVolume:          sellVolume,
		BuyVolume:           buyVolume,
		AuctionStart:        start,
		HasStarted:          hasStarted,
		ClosingPrice:        closingPrice,
		IsClosed:            closed,
		IsTheoreticalClosed: theoreticalClosed,
	}

	r.logger.DebugContext(ctx, "auction resolved",
		slog.String("pair", pair.String()),
		slog.Uint64("index", index),
		slog.Bool("started", hasStarted),
		slog.Bool("closed", closed),
		slog.Bool("theoretical_closed", theoreticalClosed),
	)

	return status, nil
}
