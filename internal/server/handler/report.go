package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dxtrader/dxbot/internal/service"
)

// ReportHandler triggers CSV report generation and upload.
type ReportHandler struct {
	reports *service.ReportService
	logger  *slog.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports *service.ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  logHandler(logger, "report"),
	}
}

// reportWindow parses the optional "since" query parameter, defaulting to the
// last 24 hours.
func reportWindow(r *http.Request) time.Time {
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Now().UTC().Add(-24 * time.Hour)
}

// SnapshotReport uploads a CSV of the pair's recent snapshots to blob storage.
// POST /api/reports/{pair}/snapshots
func (h *ReportHandler) SnapshotReport(w http.ResponseWriter, r *http.Request) {
	pair, err := pairParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token pair")
		return
	}

	path, rows, err := h.reports.SnapshotReport(r.Context(), pair, reportWindow(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "snapshot report failed",
			slog.String("pair", pair.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"path": path,
		"rows": rows,
	})
}

// SettlementReport uploads a CSV of the pair's recent settlements to blob
// storage.
// POST /api/reports/{pair}/settlements
func (h *ReportHandler) SettlementReport(w http.ResponseWriter, r *http.Request) {
	pair, err := pairParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token pair")
		return
	}

	path, rows, err := h.reports.SettlementReport(r.Context(), pair, reportWindow(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "settlement report failed",
			slog.String("pair", pair.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"path": path,
		"rows": rows,
	})
}
