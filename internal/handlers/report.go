package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/aawaaz/citizen-report-server/internal/services"
)

const activityLimit = 100

// ReportHandler handles the citizen side of the report lifecycle
type ReportHandler struct {
	reports  *services.ReportService
	appeals  *services.AppealService
	activity *services.ActivityLogService
	logger   *zap.SugaredLogger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *services.ReportService, appeals *services.AppealService, activity *services.ActivityLogService, logger *zap.SugaredLogger) *ReportHandler {
	return &ReportHandler{reports: reports, appeals: appeals, activity: activity, logger: logger}
}

// Submit handles POST /api/v1/citizen-reports
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.ReportSubmission
	if !decodeAndValidate(w, r, &req) {
		return
	}

	report, err := h.reports.Create(r.Context(), actorFrom(r).ID, req)
	if err != nil {
		respondServiceError(w, h.logger, "submit report", err)
		return
	}

	respondJSON(w, http.StatusCreated, report)
}

// MyReports handles GET /api/v1/citizen-reports/my-reports
func (h *ReportHandler) MyReports(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.reports.ListMine(r.Context(), actorFrom(r).ID, f)
	if err != nil {
		respondServiceError(w, h.logger, "list reports", err)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

// Get handles GET /api/v1/citizen-reports/{id}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.GetAs(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		respondServiceError(w, h.logger, "get report", err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Delete handles DELETE /api/v1/citizen-reports/{id}
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.reports.Delete(r.Context(), id, actorFrom(r).ID); err != nil {
		respondServiceError(w, h.logger, "delete report", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Report deleted", "id": id})
}

// Appeal handles POST /api/v1/citizen-reports/{id}/appeal
func (h *ReportHandler) Appeal(w http.ResponseWriter, r *http.Request) {
	var req models.AppealRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	report, err := h.appeals.FileAppeal(r.Context(), chi.URLParam(r, "id"), actorFrom(r).ID, req.Reason)
	if err != nil {
		respondServiceError(w, h.logger, "file appeal", err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Activity handles GET /api/v1/citizen-reports/{id}/activity
func (h *ReportHandler) Activity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// same visibility as the report itself
	if _, err := h.reports.GetAs(r.Context(), id, actorFrom(r)); err != nil {
		respondServiceError(w, h.logger, "fetch activity", err)
		return
	}

	logs, err := h.activity.FetchByReport(r.Context(), id, activityLimit)
	if err != nil {
		respondServiceError(w, h.logger, "fetch activity", err)
		return
	}
	if logs == nil {
		logs = []models.ReportActivity{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": logs,
	})
}
