package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/memo"
	"github.com/dxtrader/dxbot/internal/numeric"
)

// CacheConfig sets the default TTL tiers for the cached repo decorators. A
// read call passing a non-zero ttl overrides its tier for that call.
type CacheConfig struct {
	// Short is the tier for quantities that move with every bid: buy
	// volume and current price.
	Short time.Duration

	// Average is the tier for quantities that change only on new orders:
	// sell volume, auction start, auction index.
	Average time.Duration

	// SweepInterval drives the background expiry sweeps of all caches.
	SweepInterval time.Duration

	// Refresh enables proactive warming of expired entries.
	Refresh bool
}

// CachedAuctionRepo decorates a domain.AuctionRepo with memoized reads, one
// cache per quantity so each carries the TTL tier matching its volatility.
// Token addresses are immutable and cached without a sweep.
type CachedAuctionRepo struct {
	inner domain.AuctionRepo

	volumes *memo.Cache[*big.Int]
	prices  *memo.Cache[*numeric.Fraction]
	starts  *memo.Cache[*time.Time]
	indexes *memo.Cache[uint64]
	addrs   *memo.Cache[common.Address]
}

// NewCachedAuctionRepo wraps inner with caches registered on the given memo
// service.
func NewCachedAuctionRepo(inner domain.AuctionRepo, svc *memo.Service, cfg CacheConfig, logger *slog.Logger) *CachedAuctionRepo {
	return &CachedAuctionRepo{
		inner: inner,
		volumes: memo.New[*big.Int](svc, "auction_volumes", memo.Options{
			DefaultTTL:    cfg.Short,
			SweepInterval: cfg.SweepInterval,
			Refresh:       cfg.Refresh,
		}, logger),
		prices: memo.New[*numeric.Fraction](svc, "auction_prices", memo.Options{
			DefaultTTL:    cfg.Short,
			SweepInterval: cfg.SweepInterval,
			Refresh:       cfg.Refresh,
		}, logger),
		starts: memo.New[*time.Time](svc, "auction_starts", memo.Options{
			DefaultTTL:    cfg.Average,
			SweepInterval: cfg.SweepInterval,
		}, logger),
		indexes: memo.New[uint64](svc, "auction_indexes", memo.Options{
			DefaultTTL:    cfg.Average,
			SweepInterval: cfg.SweepInterval,
		}, logger),
		addrs: memo.New[common.Address](svc, "token_addresses", memo.Options{
			DefaultTTL: 24 * time.Hour,
		}, logger),
	}
}

func (c *CachedAuctionRepo) SellVolume(ctx context.Context, pair domain.TokenPair, ttl time.Duration) (*big.Int, error) {
	return c.volumes.Get(ctx, "sell:"+pair.String(), ttl, func(ctx context.Context) (*big.Int, error) {
		return c.inner.SellVolume(ctx, pair, 0)
	})
}

func (c *CachedAuctionRepo) BuyVolume(ctx context.Context, pair domain.TokenPair, ttl time.Duration) (*big.Int, error) {
	return c.volumes.Get(ctx, "buy:"+pair.String(), ttl, func(ctx context.Context) (*big.Int, error) {
		return c.inner.BuyVolume(ctx, pair, 0)
	})
}

func (c *CachedAuctionRepo) CurrentPrice(ctx context.Context, pair domain.TokenPair, index uint64, ttl time.Duration) (*numeric.Fraction, error) {
	key := fmt.Sprintf("current:%s:%d", pair, index)
	return c.prices.Get(ctx, key, ttl, func(ctx context.Context) (*numeric.Fraction, error) {
		return c.inner.CurrentPrice(ctx, pair, index, 0)
	})
}

func (c *CachedAuctionRepo) ClosingPrice(ctx context.Context, pair domain.TokenPair, index uint64, ttl time.Duration) (*numeric.Fraction, error) {
	key := fmt.Sprintf("closing:%s:%d", pair, index)
	return c.prices.Get(ctx, key, ttl, func(ctx context.Context) (*numeric.Fraction, error) {
		return c.inner.ClosingPrice(ctx, pair, index, 0)
	})
}

func (c *CachedAuctionRepo) AuctionStart(ctx context.Context, pair domain.TokenPair, ttl time.Duration) (*time.Time, error) {
	return c.starts.Get(ctx, pair.String(), ttl, func(ctx context.Context) (*time.Time, error) {
		return c.inner.AuctionStart(ctx, pair, 0)
	})
}

func (c *CachedAuctionRepo) AuctionIndex(ctx context.Context, pair domain.TokenPair, ttl time.Duration) (uint64, error) {
	return c.indexes.Get(ctx, pair.String(), ttl, func(ctx context.Context) (uint64, error) {
		return c.inner.AuctionIndex(ctx, pair, 0)
	})
}

// State is never cached: it gates precondition checks and must be current.
func (c *CachedAuctionRepo) State(ctx context.Context, pair domain.TokenPair, index uint64) (domain.AuctionState, error) {
	return c.inner.State(ctx, pair, index)
}

func (c *CachedAuctionRepo) TokenAddress(ctx context.Context, token domain.Token) (common.Address, error) {
	return c.addrs.Get(ctx, string(token), 0, func(ctx context.Context) (common.Address, error) {
		return c.inner.TokenAddress(ctx, token)
	})
}

// CachedEthereumRepo decorates a domain.EthereumRepo. Token metadata never
// changes for an address, so it is held in the shared redis-backed cache and
// memoized locally without expiry concerns; ledger time gets a block-time TTL.
type CachedEthereumRepo struct {
	inner  domain.EthereumRepo
	tokens domain.TokenInfoCache
	infos  *memo.Cache[domain.TokenInfo]
	clock  *memo.Cache[time.Time]
	logger *slog.Logger
}

// NewCachedEthereumRepo wraps inner. The tokens cache may be nil when the bot
// runs without redis; reads then fall through to the local memo only.
func NewCachedEthereumRepo(inner domain.EthereumRepo, tokens domain.TokenInfoCache, svc *memo.Service, logger *slog.Logger) *CachedEthereumRepo {
	return &CachedEthereumRepo{
		inner:  inner,
		tokens: tokens,
		infos: memo.New[domain.TokenInfo](svc, "token_infos", memo.Options{
			DefaultTTL: 24 * time.Hour,
		}, logger),
		clock: memo.New[time.Time](svc, "ledger_clock", memo.Options{
			DefaultTTL: time.Second,
		}, logger),
		logger: logger.With(slog.String("component", "ethereum_repo")),
	}
}

func (c *CachedEthereumRepo) TokenInfo(ctx context.Context, addr common.Address) (domain.TokenInfo, error) {
	return c.infos.Get(ctx, addr.Hex(), 0, func(ctx context.Context) (domain.TokenInfo, error) {
		if c.tokens != nil {
			info, err := c.tokens.Get(ctx, addr)
			if err == nil {
				return info, nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				c.logger.WarnContext(ctx, "token info cache read failed",
					slog.String("address", addr.Hex()),
					slog.String("error", err.Error()),
				)
			}
		}

		info, err := c.inner.TokenInfo(ctx, addr)
		if err != nil {
			return domain.TokenInfo{}, err
		}

		if c.tokens != nil {
			if err := c.tokens.Set(ctx, info); err != nil {
				c.logger.WarnContext(ctx, "token info cache write failed",
					slog.String("address", addr.Hex()),
					slog.String("error", err.Error()),
				)
			}
		}
		return info, nil
	})
}

func (c *CachedEthereumRepo) Now(ctx context.Context) (time.Time, error) {
	return c.clock.Get(ctx, "now", 0, func(ctx context.Context) (time.Time, error) {
		return c.inner.Now(ctx)
	})
}

var (
	_ domain.AuctionRepo  = (*CachedAuctionRepo)(nil)
	_ domain.EthereumRepo = (*CachedEthereumRepo)(nil)
)
