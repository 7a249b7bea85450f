// Package service coordinates the auction economics, persistence, and
// notification layers behind the HTTP API and the watch loop.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/dxtrader/dxbot/internal/auction"
	"github.com/dxtrader/dxbot/internal/domain"
	"github.com/dxtrader/dxbot/internal/memo"
	"github.com/dxtrader/dxbot/internal/notify"
	"github.com/dxtrader/dxbot/internal/numeric"
)

// Broadcaster pushes live auction status to connected clients. The websocket
// hub implements it; a nil Broadcaster disables broadcasting.
type Broadcaster interface {
	BroadcastStatus(status domain.AuctionStatus)
}

// ReceiptSigner signs settlement receipt digests with the operator key. The
// wallet account implements it.
type ReceiptSigner interface {
	Address() common.Address
	SignDigest(digest []byte) ([]byte, error)
}

// AuctionService ties the resolver, calculators, and stores together. It is
// the single entry point the HTTP handlers and the watch loop go through.
type AuctionService struct {
	auctions    domain.AuctionRepo
	resolver    *auction.Resolver
	calc        *auction.Calculator
	settler     *auction.Settler
	snapshots   domain.SnapshotStore
	settlements domain.SettlementStore
	notifier    *notify.Notifier
	broadcast   Broadcaster
	signer      ReceiptSigner
	logger      *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]domain.AuctionStatus
}

// NewAuctionService creates an AuctionService. The notifier, stores, and
// broadcaster may be nil; the corresponding side effects are skipped.
func NewAuctionService(
	auctions domain.AuctionRepo,
	resolver *auction.Resolver,
	calc *auction.Calculator,
	settler *auction.Settler,
	snapshots domain.SnapshotStore,
	settlements domain.SettlementStore,
	notifier *notify.Notifier,
	broadcast Broadcaster,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auctions:    auctions,
		resolver:    resolver,
		calc:        calc,
		settler:     settler,
		snapshots:   snapshots,
		settlements: settlements,
		notifier:    notifier,
		broadcast:   broadcast,
		logger:      logger.With(slog.String("component", "auction_service")),
		lastSeen:    make(map[string]domain.AuctionStatus),
	}
}

// WithSigner attaches the operator key; settlement records are then persisted
// with a receipt signature.
func (s *AuctionService) WithSigner(signer ReceiptSigner) *AuctionService {
	s.signer = signer
	return s
}

// Status resolves the current auction status for a pair at its current index.
func (s *AuctionService) Status(ctx context.Context, pair domain.TokenPair) (domain.AuctionStatus, error) {
	index, err := s.auctions.AuctionIndex(ctx, pair, memo.Bypass)
	if err != nil {
		return domain.AuctionStatus{}, fmt.Errorf("auction_service: auction index for %s: %w", pair, err)
	}
	return s.resolver.Resolve(ctx, pair, index)
}

// OutstandingVolume returns the buy volume still needed to clear the current
// auction, in buy-token smallest units.
func (s *AuctionService) OutstandingVolume(ctx context.Context, pair domain.TokenPair) (*big.Int, error) {
	index, err := s.auctions.AuctionIndex(ctx, pair, memo.Bypass)
	if err != nil {
		return nil, fmt.Errorf("auction_service: auction index for %s: %w", pair, err)
	}
	return s.calc.OutstandingVolume(ctx, pair, index, true)
}

// SettleInput carries the caller-facing parameters of a settlement request.
type SettleInput struct {
	Pair              domain.TokenPair
	Amount            *big.Int
	Account           common.Address
	FeeTokenAllowance *big.Int
	FeeTokenBalance   *big.Int
	ReferenceUSDPrice numeric.Fraction
}

// Settle computes the effective fill for a proposed buy amount, persists the
// result for audit, and emits a settlement notification.
func (s *AuctionService) Settle(ctx context.Context, in SettleInput) (domain.SettlementResult, error) {
	index, err := s.auctions.AuctionIndex(ctx, in.Pair, memo.Bypass)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("auction_service: auction index for %s: %w", in.Pair, err)
	}

	result, err := s.settler.SettlementAmount(ctx, auction.SettleRequest{
		Pair:              in.Pair,
		AuctionIndex:      index,
		Amount:            in.Amount,
		Account:           in.Account,
		FeeTokenAllowance: in.FeeTokenAllowance,
		FeeTokenBalance:   in.FeeTokenBalance,
		ReferenceUSDPrice: in.ReferenceUSDPrice,
	})
	if err != nil {
		return domain.SettlementResult{}, err
	}

	if s.settlements != nil {
		rec := domain.SettlementRecord{
			Pair:           in.Pair,
			AuctionIndex:   index,
			Account:        in.Account.Hex(),
			Amount:         in.Amount.String(),
			AmountAfterFee: result.AmountAfterFee.String(),
			ClosesAuction:  result.ClosesAuction,
			ComputedAt:     time.Now().UTC(),
		}
		rec.Signature = s.signReceipt(ctx, rec)
		if err := s.settlements.Insert(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "settlement record insert failed",
				slog.String("pair", in.Pair.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.emit(ctx, notify.Event{
		Type:  notify.EventSettlementComputed,
		Pair:  in.Pair,
		Index: index,
		Body: fmt.Sprintf("amount %s, after fee %s, closes auction: %t",
			in.Amount, result.AmountAfterFee, result.ClosesAuction),
	})

	return result, nil
}

// ReceiptDigest is the keccak256 hash of the canonical settlement receipt
// encoding. Verifiers recompute it from the persisted record fields.
func ReceiptDigest(rec domain.SettlementRecord) []byte {
	canonical := fmt.Sprintf("dxbot-settlement|%s|%d|%s|%s|%s|%t",
		rec.Pair, rec.AuctionIndex, rec.Account, rec.Amount, rec.AmountAfterFee, rec.ClosesAuction)
	return ethcrypto.Keccak256([]byte(canonical))
}

// signReceipt returns the hex receipt signature, or empty when no operator
// key is configured or signing fails. A failed signature never blocks the
// settlement itself.
func (s *AuctionService) signReceipt(ctx context.Context, rec domain.SettlementRecord) string {
	if s.signer == nil {
		return ""
	}
	sig, err := s.signer.SignDigest(ReceiptDigest(rec))
	if err != nil {
		s.logger.WarnContext(ctx, "receipt signing failed",
			slog.String("pair", rec.Pair.String()),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return fmt.Sprintf("0x%x", sig)
}

// Snapshot resolves the pair's status, persists an observation, broadcasts it,
// and emits lifecycle notifications for transitions since the last snapshot.
func (s *AuctionService) Snapshot(ctx context.Context, pair domain.TokenPair) (domain.AuctionStatus, error) {
	status, err := s.Status(ctx, pair)
	if err != nil {
		return domain.AuctionStatus{}, err
	}

	outstanding := s.outstandingForSnapshot(ctx, status)

	if s.snapshots != nil {
		rec := domain.SnapshotRecord{
			Pair:                pair,
			AuctionIndex:        status.Index,
			SellVolume:          status.SellVolume.String(),
			BuyVolume:           status.BuyVolume.String(),
			OutstandingVolume:   outstanding.String(),
			HasStarted:          status.HasStarted,
			IsClosed:            status.IsClosed,
			IsTheoreticalClosed: status.IsTheoreticalClosed,
			ObservedAt:          time.Now().UTC(),
		}
		if err := s.snapshots.Insert(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "snapshot insert failed",
				slog.String("pair", pair.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.broadcast != nil {
		s.broadcast.BroadcastStatus(status)
	}

	s.notifyTransitions(ctx, status)

	return status, nil
}

// ListSnapshots returns persisted observations for a pair, newest first.
func (s *AuctionService) ListSnapshots(ctx context.Context, pair domain.TokenPair, opts domain.ListOpts) ([]domain.SnapshotRecord, error) {
	if s.snapshots == nil {
		return nil, nil
	}
	return s.snapshots.ListByPair(ctx, pair, opts)
}

// ListSettlements returns persisted settlement computations, newest first.
func (s *AuctionService) ListSettlements(ctx context.Context, pair domain.TokenPair, opts domain.ListOpts) ([]domain.SettlementRecord, error) {
	if s.settlements == nil {
		return nil, nil
	}
	return s.settlements.ListByPair(ctx, pair, opts)
}

// outstandingForSnapshot computes the outstanding volume for persistence. For
// auctions that are not running (or not yet priced) the outstanding volume is
// recorded as zero rather than failing the whole snapshot.
func (s *AuctionService) outstandingForSnapshot(ctx context.Context, status domain.AuctionStatus) *big.Int {
	out, err := s.calc.OutstandingVolume(ctx, status.Pair, status.Index, true)
	if err != nil {
		if !errors.Is(err, domain.ErrAuctionNotRunning) && !errors.Is(err, domain.ErrMissingPrice) {
			s.logger.WarnContext(ctx, "outstanding volume for snapshot failed",
				slog.String("pair", status.Pair.String()),
				slog.String("error", err.Error()),
			)
		}
		return big.NewInt(0)
	}
	return out
}

// notifyTransitions compares the status against the previous snapshot of the
// same pair and emits an event for each lifecycle edge that flipped.
func (s *AuctionService) notifyTransitions(ctx context.Context, status domain.AuctionStatus) {
	s.mu.Lock()
	prev, seen := s.lastSeen[status.Pair.String()]
	s.lastSeen[status.Pair.String()] = status
	s.mu.Unlock()

	if !seen {
		return
	}
	// A new index means the previous auction cleared and a new one began;
	// per-auction edges below only apply within the same index.
	if prev.Index != status.Index {
		s.emit(ctx, notify.Event{
			Type:  notify.EventAuctionStarted,
			Pair:  status.Pair,
			Index: status.Index,
			Body:  fmt.Sprintf("auction index advanced from %d", prev.Index),
		})
		return
	}

	if !prev.HasStarted && status.HasStarted {
		s.emit(ctx, notify.Event{
			Type:  notify.EventAuctionStarted,
			Pair:  status.Pair,
			Index: status.Index,
			Body:  "scheduled start reached",
		})
	}
	if !prev.IsTheoreticalClosed && status.IsTheoreticalClosed {
		s.emit(ctx, notify.Event{
			Type:  notify.EventTheoreticalClose,
			Pair:  status.Pair,
			Index: status.Index,
			Body:  "outstanding volume reached zero without a clearing event",
		})
	}
	if !prev.IsClosed && status.IsClosed {
		body := "auction closed"
		if status.ClosingPrice != nil {
			body = fmt.Sprintf("clearing price %s recorded", status.ClosingPrice)
		}
		s.emit(ctx, notify.Event{
			Type:  notify.EventAuctionCleared,
			Pair:  status.Pair,
			Index: status.Index,
			Body:  body,
		})
	}
}

func (s *AuctionService) emit(ctx context.Context, ev notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
