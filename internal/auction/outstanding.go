// Package auction implements the economic core of the bot: resolving an
// auction's lifecycle state, computing its remaining unfilled demand, and
// sizing proposed orders against it. All arithmetic is exact rational math;
// ledger reads fan out concurrently and are memoized under TTL tiers matched
// to each quantity's volatility.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/numeric"
)

// CacheTiers groups the TTLs applied to ledger reads. Short covers the
// fastest-moving quantities (buy volume, current price); Average covers
// quantities that change only on new orders (sell volume, auction start).
type CacheTiers struct {
	Short   time.Duration
	Average time.Duration
}

// DefaultTiers matches the staleness tolerances the bot runs with in production.
func DefaultTiers() CacheTiers {
	return CacheTiers{
		Short:   5 * time.Second,
		Average: 30 * time.Second,
	}
}

// Calculator computes outstanding volume: the amount of the buy token still
// needed, at the current price, to clear an auction's remaining sell volume.
type Calculator struct {
	auctions domain.AuctionRepo
	ethereum domain.EthereumRepo
	tiers    CacheTiers
	logger   *slog.Logger
}

// NewCalculator creates a Calculator using the given repos and default TTL
// tiers for its ledger reads.
func NewCalculator(auctions domain.AuctionRepo, ethereum domain.EthereumRepo, tiers CacheTiers, logger *slog.Logger) *Calculator {
	return &Calculator{
		auctions: auctions,
		ethereum: ethereum,
		tiers:    tiers,
		logger:   logger.With(slog.String("component", "outstanding_volume")),
	}
}

// OutstandingVolume returns the auction's remaining unfilled demand in
// buy-token smallest units, never negative. When assertState is true the
// ledger state is checked first and a waiting auction fails fast with
// domain.ErrAuctionNotRunning.
func (c *Calculator) OutstandingVolume(ctx context.Context, pair domain.TokenPair, index uint64, assertState bool) (*big.Int, error) {
	return c.OutstandingVolumeTiers(ctx, pair, index, assertState, c.tiers)
}

// OutstandingVolumeTiers is OutstandingVolume with a per-call TTL tier
// override, letting callers trade staleness for read volume.
func (c *Calculator) OutstandingVolumeTiers(ctx context.Context, pair domain.TokenPair, index uint64, assertState bool, tiers CacheTiers) (*big.Int, error) {
	if assertState {
		state, err := c.auctions.State(ctx, pair, index)
		if err != nil {
			return nil, fmt.Errorf("auction: state %s/%d: %w", pair, index, err)
		}
		if state.Waiting() {
			return nil, fmt.Errorf("auction: %s/%d state %s: %w", pair, index, state, domain.ErrAuctionNotRunning)
		}
	}

	// Independent ledger reads, joined before any computation. Sell volume
	// moves only on new orders and gets the average tier; buy volume and
	// price move with every bid and get the short tier.
	var (
		sellVolume, buyVolume *big.Int
		price                 *numeric.Fraction
		sellAddr, buyAddr     common.Address
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sellVolume, err = c.auctions.SellVolume(gctx, pair, tiers.Average)
		return err
	})
	g.Go(func() (err error) {
		buyVolume, err = c.auctions.BuyVolume(gctx, pair, tiers.Short)
		return err
	})
	g.Go(func() (err error) {
		price, err = c.auctions.CurrentPrice(gctx, pair, index, tiers.Short)
		return err
	})
	g.Go(func() (err error) {
		sellAddr, err = c.auctions.TokenAddress(gctx, pair.Sell)
		return err
	})
	g.Go(func() (err error) {
		buyAddr, err = c.auctions.TokenAddress(gctx, pair.Buy)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("auction: outstanding volume reads %s/%d: %w", pair, index, err)
	}

	if price == nil {
		return nil, fmt.Errorf("auction: %s/%d: %w", pair, index, domain.ErrMissingPrice)
	}

	var sellInfo, buyInfo domain.TokenInfo
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sellInfo, err = c.ethereum.TokenInfo(gctx, sellAddr)
		return err
	})
	g.Go(func() (err error) {
		buyInfo, err = c.ethereum.TokenInfo(gctx, buyAddr)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("auction: token info %s/%d: %w", pair, index, err)
	}

	return Outstanding(sellVolume, buyVolume, *price, sellInfo.Decimals, buyInfo.Decimals), nil
}

// Outstanding normalizes the sell volume into buy-token units at the given
// price and subtracts the accumulated buy volume, clamping at zero. A
// negative raw difference means the buy side over-filled relative to a stale
// sell-side read; that is read skew from independent concurrent reads, not an
// error.
func Outstanding(sellVolume, buyVolume *big.Int, price numeric.Fraction, sellDecimals, buyDecimals uint8) *big.Int {
	sellInBuyUnits := numeric.FromInt(sellVolume).
		ScalePow10(int(buyDecimals) - int(sellDecimals)).
		Mul(price)
	raw := sellInBuyUnits.Sub(numeric.FromInt(buyVolume))
	return numeric.ClampNonNegative(raw.Floor())
}
