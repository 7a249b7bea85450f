// Package notify delivers auction lifecycle alerts to operators. Events are
// dispatched to all registered senders (Telegram, Discord) and can be filtered
// by event type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dxtrader/dxbot/internal/domain"
)

// Event types emitted by the watcher.
const (
	EventAuctionCleared     = "auction.cleared"
	EventTheoreticalClose   = "auction.theoretical_close"
	EventAuctionStarted     = "auction.started"
	EventSettlementComputed = "settlement.computed"
)

// Event is a single auction lifecycle alert.
type Event struct {
	Type  string
	Pair  domain.TokenPair
	Index uint64
	Body  string
}

// Title renders the event headline shown in the notification channel.
func (e Event) Title() string {
	switch e.Type {
	case EventAuctionCleared:
		return fmt.Sprintf("Auction cleared: %s #%d", e.Pair, e.Index)
	case EventTheoreticalClose:
		return fmt.Sprintf("Theoretical close: %s #%d", e.Pair, e.Index)
	case EventAuctionStarted:
		return fmt.Sprintf("Auction started: %s #%d", e.Pair, e.Index)
	case EventSettlementComputed:
		return fmt.Sprintf("Settlement computed: %s #%d", e.Pair, e.Index)
	default:
		return fmt.Sprintf("%s: %s #%d", e.Type, e.Pair, e.Index)
	}
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches events to one or more Senders. It maintains a set of
// allowed event types; Notify only forwards events whose type is in the
// allowed set. An empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice are forwarded; an empty slice
// allows all event types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends an event to all senders if its type passes the filter.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", ev.Type),
		)
		return nil
	}

	return n.dispatch(ctx, ev.Title(), ev.Body)
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned combined; a single sender
// failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
