package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/services"
)

const defaultTrendDays = 30

// AccrualRunner triggers one debt accrual run.
// The flag is false when another run already holds this period.
type AccrualRunner interface {
	RunOnce(ctx context.Context) (*services.AccrualResult, bool, error)
}

// AdminHandler handles manual accrual and report analytics
type AdminHandler struct {
	reports *services.ReportService
	accrual AccrualRunner
	logger  *zap.SugaredLogger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(reports *services.ReportService, accrual AccrualRunner, logger *zap.SugaredLogger) *AdminHandler {
	return &AdminHandler{reports: reports, accrual: accrual, logger: logger}
}

// Accrue handles POST /api/v1/admin/debts/accrue
func (h *AdminHandler) Accrue(w http.ResponseWriter, r *http.Request) {
	res, ran, err := h.accrual.RunOnce(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "accrue debts", err)
		return
	}
	if !ran {
		respondError(w, http.StatusConflict, "Accrual already running for this period")
		return
	}

	h.logger.Infow("Manual debt accrual",
		"period", res.PeriodKey,
		"checked", res.Checked,
		"accrued", res.Accrued,
	)
	respondJSON(w, http.StatusOK, res)
}

// ViolationTypes handles GET /api/v1/admin/analytics/violation-types
func (h *AdminHandler) ViolationTypes(w http.ResponseWriter, r *http.Request) {
	dist, err := h.reports.ViolationTypeDistribution(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "fetch violation types", err)
		return
	}
	respondJSON(w, http.StatusOK, dist)
}

// Statuses handles GET /api/v1/admin/analytics/statuses
func (h *AdminHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	dist, err := h.reports.StatusSummary(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "fetch statuses", err)
		return
	}
	respondJSON(w, http.StatusOK, dist)
}

// Trends handles GET /api/v1/admin/analytics/trends?days=30
func (h *AdminHandler) Trends(w http.ResponseWriter, r *http.Request) {
	days := defaultTrendDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid days")
			return
		}
		days = n
	}

	trends, err := h.reports.Trend(r.Context(), days)
	if err != nil {
		respondServiceError(w, h.logger, "fetch trends", err)
		return
	}
	respondJSON(w, http.StatusOK, trends)
}
