package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/numeric"
)

// Repo implements domain.AuctionRepo with raw contract reads. The ttl
// arguments of the interface are ignored here; caching is layered on by
// CachedAuctionRepo.
type Repo struct {
	exchange *contract
	tokens   map[domain.Token]common.Address
}

// NewRepo creates a Repo for the exchange contract at exchangeAddr. The
// tokens map resolves configured token symbols to addresses; identifiers that
// are themselves hex addresses resolve without an entry.
func NewRepo(client *Client, exchangeAddr common.Address, tokens map[domain.Token]common.Address) (*Repo, error) {
	exchange, err := newContract(exchangeABI, exchangeAddr, client.Eth())
	if err != nil {
		return nil, err
	}
	return &Repo{exchange: exchange, tokens: tokens}, nil
}

func (r *Repo) pairAddrs(ctx context.Context, pair domain.TokenPair) (sell, buy common.Address, err error) {
	sell, err = r.TokenAddress(ctx, pair.Sell)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	buy, err = r.TokenAddress(ctx, pair.Buy)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return sell, buy, nil
}

// SellVolume returns the auction's committed sell volume in sell-token
// smallest units.
func (r *Repo) SellVolume(ctx context.Context, pair domain.TokenPair, _ time.Duration) (*big.Int, error) {
	sell, buy, err := r.pairAddrs(ctx, pair)
	if err != nil {
		return nil, err
	}
	var vol *big.Int
	if err := r.exchange.call(ctx, "sellVolumesCurrent", []any{&vol}, sell, buy); err != nil {
		return nil, fmt.Errorf("ledger: sell volume %s: %w", pair, err)
	}
	return vol, nil
}

// BuyVolume returns the accumulated buy volume in buy-token smallest units.
func (r *Repo) BuyVolume(ctx context.Context, pair domain.TokenPair, _ time.Duration) (*big.Int, error) {
	sell, buy, err := r.pairAddrs(ctx, pair)
	if err != nil {
		return nil, err
	}
	var vol *big.Int
	if err := r.exchange.call(ctx, "buyVolumes", []any{&vol}, sell, buy); err != nil {
		return nil, fmt.Errorf("ledger: buy volume %s: %w", pair, err)
	}
	return vol, nil
}

// CurrentPrice returns the auction's current price, or nil for an unpriced
// auction (the contract reports a zero denominator).
func (r *Repo) CurrentPrice(ctx context.Context, pair domain.TokenPair, index uint64, _ time.Duration) (*numeric.Fraction, error) {
	sell, buy, err := r.pairAddrs(ctx, pair)
	if err != nil {
		return nil, err
	}
	var num, den *big.Int
	if err := r.exchange.call(ctx, "getCurrentAuctionPrice", []any{&num, &den}, sell, buy, new(big.Int).SetUint64(index)); err != nil {
		return nil, fmt.Errorf("ledger: current price %s/%d: %w", pair, index, err)
	}
	return fractionOrNil(num, den)
}

// ClosingPrice returns the recorded clearing price, or nil when the auction
// has not cleared.
func (r *Repo) ClosingPrice(ctx context.Context, pair domain.TokenPair, index uint64, _ time.Duration) (*numeric.Fraction, error) {
	sell, buy, err := r.pairAddrs(ctx, pair)
	if err != nil {
		return nil, err
	}
	var num, den *big.Int
	if err := r.exchange.call(ctx, "closingPrices", []any{&num, &den}, sell, buy, new(big.Int).SetUint64(index)); err != nil {
		return nil, fmt.Errorf("ledger: closing price %s/%d: %w", pair, index, err)
	}
	return fractionOrNil(num, den)
}

// AuctionStart returns the scheduled start time, or nil when the contract
// reports none (zero or the contract's far-future sentinel).
func (r *Repo) AuctionStart(ctx context.Context, pair domain.TokenPair, _ time.Duration) (*time.Time, error) {
	sell, buy, err := r.pairAddrs(ctx, pair)
	if err != nil {
		return nil, err
	}
	var ts *big.Int
	if err := r.exchange.call(ctx, "getAuctionStart", []any{&ts}, sell, buy); err != nil {
		return nil, fmt.Errorf("ledger: auction start %s: %w", pair, err)
	}
	// The contract uses 1 as a "scheduled but not set" marker.
	if ts.Sign() == 0 || ts.Cmp(big.NewInt(1)) == 0 {
		return nil, nil
	}
	t := time.Unix(ts.Int64(), 0).UTC()
	return &t, nil
}

// AuctionIndex returns the current auction index for the pair.
func (r *Repo) AuctionIndex(ctx context.Context, pair domain.TokenPair, _ time.Duration) (uint64, error) {
	sell, buy, err := r.pairAddrs(ctx, pair)
	if err != nil {
		return 0, err
	}
	var idx *big.Int
	if err := r.exchange.call(ctx, "getAuctionIndex", []any{&idx}, sell, buy); err != nil {
		return 0, fmt.Errorf("ledger: auction index %s: %w", pair, err)
	}
	return idx.Uint64(), nil
}

// State derives the ledger's lifecycle classification from the same reads the
// contract's own clearance logic uses.
func (r *Repo) State(ctx context.Context, pair domain.TokenPair, index uint64) (domain.AuctionState, error) {
	sellVolume, err := r.SellVolume(ctx, pair, 0)
	if err != nil {
		return domain.StateUnknown, err
	}
	start, err := r.AuctionStart(ctx, pair, 0)
	if err != nil {
		return domain.StateUnknown, err
	}

	if start == nil {
		return domain.StateWaitingForFunding, nil
	}
	header, err := r.exchange.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.StateUnknown, fmt.Errorf("ledger: latest header: %w", err)
	}
	if start.After(time.Unix(int64(header.Time), 0)) {
		return domain.StateWaitingForAuctionToStart, nil
	}
	if sellVolume.Sign() == 0 {
		return domain.StateOneAuctionHasClosed, nil
	}

	closing, err := r.ClosingPrice(ctx, pair, index, 0)
	if err != nil {
		return domain.StateUnknown, err
	}
	if closing != nil {
		return domain.StateOneAuctionHasClosed, nil
	}
	return domain.StateRunning, nil
}

// TokenAddress resolves a configured symbol or parses a hex address.
func (r *Repo) TokenAddress(_ context.Context, token domain.Token) (common.Address, error) {
	if addr, ok := r.tokens[token]; ok {
		return addr, nil
	}
	s := string(token)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	return common.Address{}, fmt.Errorf("ledger: token %q: %w", token, domain.ErrNotFound)
}

func fractionOrNil(num, den *big.Int) (*numeric.Fraction, error) {
	if den == nil || den.Sign() == 0 {
		return nil, nil
	}
	f, err := numeric.FromBig(num, den)
	if err != nil {
		return nil, fmt.Errorf("ledger: price: %w", err)
	}
	return &f, nil
}

// EthRepo implements domain.EthereumRepo with raw ERC-20 and block reads.
type EthRepo struct {
	client *Client
}

// NewEthRepo creates an EthRepo on the given client.
func NewEthRepo(client *Client) *EthRepo {
	return &EthRepo{client: client}
}

// TokenInfo reads decimals and symbol from the token contract.
func (e *EthRepo) TokenInfo(ctx context.Context, addr common.Address) (domain.TokenInfo, error) {
	token, err := newContract(erc20ABI, addr, e.client.Eth())
	if err != nil {
		return domain.TokenInfo{}, err
	}

	var decimals uint8
	if err := token.call(ctx, "decimals", []any{&decimals}); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("ledger: decimals %s: %w", addr.Hex(), err)
	}
	var symbol string
	if err := token.call(ctx, "symbol", []any{&symbol}); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("ledger: symbol %s: %w", addr.Hex(), err)
	}

	return domain.TokenInfo{
		Address:  addr,
		Decimals: decimals,
		Symbol:   strings.TrimSpace(symbol),
	}, nil
}

// Now returns the latest block timestamp. Auction scheduling follows ledger
// time, which may lag the wall clock.
func (e *EthRepo) Now(ctx context.Context) (time.Time, error) {
	header, err := e.client.Eth().HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger: latest header: %w", err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

var (
	_ domain.AuctionRepo  = (*Repo)(nil)
	_ domain.EthereumRepo = (*EthRepo)(nil)
)
