package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/aawaaz/citizen-report-server/internal/services"
)

// PoliceHandler handles the review queue and appeal resolution
type PoliceHandler struct {
	reports *services.ReportService
	reviews *services.ReviewService
	appeals *services.AppealService
	logger  *zap.SugaredLogger
}

// NewPoliceHandler creates a new police handler
func NewPoliceHandler(reports *services.ReportService, reviews *services.ReviewService, appeals *services.AppealService, logger *zap.SugaredLogger) *PoliceHandler {
	return &PoliceHandler{reports: reports, reviews: reviews, appeals: appeals, logger: logger}
}

// Queue handles GET /api/v1/police/reports
func (h *PoliceHandler) Queue(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.reports.ListForReview(r.Context(), f)
	if err != nil {
		respondServiceError(w, h.logger, "list reports", err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// Review handles POST /api/v1/police/review-report/{id}
func (h *PoliceHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	report, err := h.reviews.Review(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Status, req.ReviewNotes, req.Amount)
	if err != nil {
		respondServiceError(w, h.logger, "review report", err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Appeals handles GET /api/v1/police/appeals
func (h *PoliceHandler) Appeals(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	result, err := h.appeals.ListPending(r.Context(), page, limit)
	if err != nil {
		respondServiceError(w, h.logger, "list appeals", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ResolveAppeal handles POST /api/v1/police/resolve-appeal/{id}
func (h *PoliceHandler) ResolveAppeal(w http.ResponseWriter, r *http.Request) {
	var req models.AppealResolutionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	report, err := h.appeals.ResolveAppeal(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Status, req.AppealNotes)
	if err != nil {
		respondServiceError(w, h.logger, "resolve appeal", err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}
