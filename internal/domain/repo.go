package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/numeric"
)

// Reads against the ledger accept a TTL argument so call sites can trade
// staleness for read volume. A zero TTL means the implementation's default
// tier for that quantity; raw (uncached) implementations ignore it.

// AuctionRepo exposes the dutch-auction ledger reads the economics need.
// Collaborator failures (RPC errors, timeouts) are propagated unchanged;
// retry policy belongs to the implementation, never to callers.
type AuctionRepo interface {
	// SellVolume returns the auction's total committed sell volume in
	// sell-token smallest units. Changes only when new sell orders arrive.
	SellVolume(ctx context.Context, pair TokenPair, ttl time.Duration) (*big.Int, error)

	// BuyVolume returns the buy volume accumulated so far in buy-token
	// smallest units. This is the fastest-moving quantity.
	BuyVolume(ctx context.Context, pair TokenPair, ttl time.Duration) (*big.Int, error)

	// CurrentPrice returns the auction's current price, or nil when the
	// auction has not been priced yet.
	CurrentPrice(ctx context.Context, pair TokenPair, index uint64, ttl time.Duration) (*numeric.Fraction, error)

	// ClosingPrice returns the recorded clearing price for the auction
	// index, or nil when no clearing event exists.
	ClosingPrice(ctx context.Context, pair TokenPair, index uint64, ttl time.Duration) (*numeric.Fraction, error)

	// AuctionStart returns the scheduled start time of the current
	// auction, or nil when none is scheduled.
	AuctionStart(ctx context.Context, pair TokenPair, ttl time.Duration) (*time.Time, error)

	// AuctionIndex returns the current auction index for the pair.
	AuctionIndex(ctx context.Context, pair TokenPair, ttl time.Duration) (uint64, error)

	// State returns the ledger's lifecycle classification of the auction.
	State(ctx context.Context, pair TokenPair, index uint64) (AuctionState, error)

	// TokenAddress resolves a token identifier to its ledger address.
	TokenAddress(ctx context.Context, token Token) (common.Address, error)
}

// EthereumRepo exposes generic ledger reads that are not auction specific.
type EthereumRepo interface {
	// TokenInfo returns the ERC-20 metadata for the given address.
	TokenInfo(ctx context.Context, addr common.Address) (TokenInfo, error)

	// Now returns ledger time (latest block timestamp). Ledger time may lag
	// wall-clock time, and auction scheduling follows the ledger.
	Now(ctx context.Context) (time.Time, error)
}

// FeeSettlementRequest carries everything the ledger-side fee logic needs to
// compute a fee-adjusted fill for a partial order. The allowance, balance and
// USD reference price feed the fee-token discount computation.
type FeeSettlementRequest struct {
	Pair              TokenPair
	AuctionIndex      uint64
	Amount            *big.Int
	Account           common.Address
	FeeTokenAllowance *big.Int
	FeeTokenBalance   *big.Int
	ReferenceUSDPrice numeric.Fraction
}

// FeeSettler delegates fee computation to the ledger collaborator.
type FeeSettler interface {
	SettleFee(ctx context.Context, req FeeSettlementRequest) (*big.Int, error)
}

// TokenInfoCache stores immutable token metadata across processes.
type TokenInfoCache interface {
	Get(ctx context.Context, addr common.Address) (TokenInfo, error)
	Set(ctx context.Context, info TokenInfo) error
}

// ListOpts carries pagination parameters for store listings.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// SnapshotRecord is a persisted auction status observation.
type SnapshotRecord struct {
	ID                  string
	Pair                TokenPair
	AuctionIndex        uint64
	SellVolume          string // decimal string, smallest units
	BuyVolume           string
	OutstandingVolume   string
	HasStarted          bool
	IsClosed            bool
	IsTheoreticalClosed bool
	ObservedAt          time.Time
}

// SettlementRecord is a persisted settlement computation.
type SettlementRecord struct {
	ID             string
	Pair           TokenPair
	AuctionIndex   uint64
	Account        string
	Amount         string
	AmountAfterFee string
	ClosesAuction  bool
	// Signature is the operator's receipt signature over the settlement
	// fields, empty when no operator key is configured.
	Signature  string
	ComputedAt time.Time
}

// SnapshotStore persists auction status observations for reporting.
type SnapshotStore interface {
	Insert(ctx context.Context, rec SnapshotRecord) error
	ListByPair(ctx context.Context, pair TokenPair, opts ListOpts) ([]SnapshotRecord, error)
}

// SettlementStore persists settlement computations for audit.
type SettlementStore interface {
	Insert(ctx context.Context, rec SettlementRecord) error
	ListByPair(ctx context.Context, pair TokenPair, opts ListOpts) ([]SettlementRecord, error)
}
