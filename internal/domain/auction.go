// Package domain defines the core types and collaborator interfaces of the
// dutch-auction trading bot. Implementations live in the infra packages
// (ledger, cache, store); the auction package contains the economics.
package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dxtrader/dxbot/internal/numeric"
)

// Token is an opaque token identifier: a symbol like "WETH" or a hex address.
type Token string

// TokenPair is the ordered (sell, buy) pair identifying one auction series.
// It is immutable and used as a lookup key.
type TokenPair struct {
	Sell Token
	Buy  Token
}

// NewTokenPair builds a pair and validates that both sides are present and
// distinct.
func NewTokenPair(sell, buy Token) (TokenPair, error) {
	if sell == "" || buy == "" {
		return TokenPair{}, fmt.Errorf("pair %s-%s: %w", sell, buy, ErrInvalidTokenPair)
	}
	if strings.EqualFold(string(sell), string(buy)) {
		return TokenPair{}, fmt.Errorf("pair %s-%s: %w", sell, buy, ErrInvalidTokenPair)
	}
	return TokenPair{Sell: sell, Buy: buy}, nil
}

// Inverse returns the opposite auction of the same market.
func (p TokenPair) Inverse() TokenPair {
	return TokenPair{Sell: p.Buy, Buy: p.Sell}
}

func (p TokenPair) String() string {
	return string(p.Sell) + "-" + string(p.Buy)
}

// TokenInfo describes an ERC-20 token as read from the ledger. Decimals never
// change for a given address within a process lifetime, so TokenInfo is safe
// to cache without expiry.
type TokenInfo struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// AuctionState is the ledger's lifecycle classification of an auction.
type AuctionState int

const (
	StateUnknown AuctionState = iota
	StateWaitingForFunding
	StateWaitingForAuctionToStart
	StateRunning
	StatePendingCloseTheoretical
	StateOneAuctionHasClosed
)

// Waiting reports whether the auction has not yet begun trading. Outstanding
// volume is undefined in these states.
func (s AuctionState) Waiting() bool {
	return s == StateWaitingForFunding || s == StateWaitingForAuctionToStart
}

func (s AuctionState) String() string {
	switch s {
	case StateWaitingForFunding:
		return "WAITING_FOR_FUNDING"
	case StateWaitingForAuctionToStart:
		return "WAITING_FOR_AUCTION_TO_START"
	case StateRunning:
		return "RUNNING"
	case StatePendingCloseTheoretical:
		return "PENDING_CLOSE_THEORETICAL"
	case StateOneAuctionHasClosed:
		return "ONE_AUCTION_HAS_CLOSED"
	default:
		return "UNKNOWN"
	}
}

// AuctionStatus is the resolved economic state of one auction. Each resolution
// produces a fresh, independent value; nothing here aliases ledger state.
type AuctionStatus struct {
	Pair         TokenPair
	Index        uint64
	SellVolume   *big.Int
	BuyVolume    *big.Int
	AuctionStart *time.Time
	HasStarted   bool
	ClosingPrice *numeric.Fraction

	// IsClosed reflects the ledger's authoritative record of a clearing
	// event. IsTheoreticalClosed means outstanding demand has reached zero
	// but no clearing transaction has landed yet. The two signals are
	// independent, so a caller can tell "about to clear" from "cleared".
	IsClosed            bool
	IsTheoreticalClosed bool
}

// SettlementResult is the outcome of sizing a proposed order against an
// auction's outstanding volume.
type SettlementResult struct {
	// AmountAfterFee is the fee-adjusted fill amount in buy-token smallest
	// units. It never exceeds the outstanding volume observed at
	// computation time.
	AmountAfterFee *big.Int

	// ClosesAuction is true when the proposed amount covers all remaining
	// demand, i.e. the order would clear the auction.
	ClosesAuction bool
}
