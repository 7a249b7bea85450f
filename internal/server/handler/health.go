package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// LedgerClock reports the ledger's current time. The cached ethereum repo
// implements it; a failing read means the RPC endpoint is unreachable.
type LedgerClock interface {
	Now(ctx context.Context) (time.Time, error)
}

// HealthHandler serves the readiness endpoint. Beyond process liveness it
// verifies that the ledger answers, and reports how far its clock lags the
// host.
type HealthHandler struct {
	clock     LedgerClock
	pairCount int
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. clock may be nil, in which case
// only process liveness is reported.
func NewHealthHandler(clock LedgerClock, pairCount int, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		clock:     clock,
		pairCount: pairCount,
		startedAt: time.Now().UTC(),
		logger:    logHandler(logger, "health"),
	}
}

// HealthCheck reports readiness. The ledger check runs with a short deadline
// so a stalled RPC endpoint degrades the check instead of hanging it.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	resp := map[string]any{
		"status":         "ok",
		"timestamp":      now.Format(time.RFC3339),
		"uptime_seconds": int64(now.Sub(h.startedAt).Seconds()),
		"pairs_watched":  h.pairCount,
	}

	if h.clock != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ledgerTime, err := h.clock.Now(ctx)
		if err != nil {
			h.logger.WarnContext(r.Context(), "ledger unreachable",
				slog.String("error", err.Error()),
			)
			resp["status"] = "degraded"
			resp["ledger"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["ledger_time"] = ledgerTime.UTC().Format(time.RFC3339)
		resp["ledger_lag_seconds"] = int64(now.Sub(ledgerTime).Seconds())
	}

	writeJSON(w, http.StatusOK, resp)
}
