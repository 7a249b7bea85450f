package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/dxtrader/dxbot/internal/domain"
)

// TokenInfoCache implements domain.TokenInfoCache using Redis hashes. Each
// token is stored at key "token:{address}" with fields "decimals" and
// "symbol". Entries carry no TTL: decimals never change for an address within
// the life of the deployment.
type TokenInfoCache struct {
	rdb *redis.Client
}

// NewTokenInfoCache creates a TokenInfoCache backed by the given Client.
func NewTokenInfoCache(c *Client) *TokenInfoCache {
	return &TokenInfoCache{rdb: c.Underlying()}
}

func tokenKey(addr common.Address) string {
	return "token:" + addr.Hex()
}

// Get retrieves the cached metadata for a token address. It returns
// domain.ErrNotFound when the key does not exist.
func (tc *TokenInfoCache) Get(ctx context.Context, addr common.Address) (domain.TokenInfo, error) {
	vals, err := tc.rdb.HGetAll(ctx, tokenKey(addr)).Result()
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("redis: get token %s: %w", addr.Hex(), err)
	}
	if len(vals) == 0 {
		return domain.TokenInfo{}, domain.ErrNotFound
	}

	decStr, ok := vals["decimals"]
	if !ok {
		return domain.TokenInfo{}, domain.ErrNotFound
	}
	dec, err := strconv.ParseUint(decStr, 10, 8)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("redis: parse decimals for %s: %w", addr.Hex(), err)
	}

	return domain.TokenInfo{
		Address:  addr,
		Decimals: uint8(dec),
		Symbol:   vals["symbol"],
	}, nil
}

// Set stores token metadata without expiry.
func (tc *TokenInfoCache) Set(ctx context.Context, info domain.TokenInfo) error {
	fields := map[string]interface{}{
		"decimals": strconv.FormatUint(uint64(info.Decimals), 10),
		"symbol":   info.Symbol,
	}
	if err := tc.rdb.HSet(ctx, tokenKey(info.Address), fields).Err(); err != nil {
		return fmt.Errorf("redis: set token %s: %w", info.Address.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TokenInfoCache = (*TokenInfoCache)(nil)
