// Package services contains business logic layers.
// Services are called by handlers and interact with the database; every
// state transition runs inside a single database transaction.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReportService owns citizen reports and enforces their creation and
// deletion rules.
type ReportService struct {
	db       *database.DB
	activity *ActivityLogService
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewReportService creates a new report service
func NewReportService(db *database.DB, activity *ActivityLogService, logger *zap.SugaredLogger) *ReportService {
	return &ReportService{db: db, activity: activity, logger: logger, now: time.Now}
}

// SetClock replaces the time source.
func (s *ReportService) SetClock(now func() time.Time) { s.now = now }

// Create stores a new PENDING report for citizenID.
func (s *ReportService) Create(ctx context.Context, citizenID string, req models.ReportSubmission) (*models.CitizenReport, error) {
	plate := strings.ToUpper(strings.TrimSpace(req.VehiclePlate))
	switch {
	case strings.TrimSpace(citizenID) == "":
		return nil, validationf("citizen id is required")
	case plate == "":
		return nil, validationf("vehicle plate is required")
	case req.ViolationType == "":
		return nil, validationf("violation type is required")
	case !req.ViolationType.Valid():
		return nil, validationf("unknown violation type %q", req.ViolationType)
	case len(req.EvidenceURLs) == 0:
		return nil, validationf("at least one evidence item is required")
	}

	evidence := make([]string, 0, len(req.EvidenceURLs))
	for _, u := range req.EvidenceURLs {
		u = strings.TrimSpace(u)
		if u == "" {
			return nil, validationf("evidence urls must not be blank")
		}
		evidence = append(evidence, u)
	}

	if loc := req.LocationData; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return nil, validationf("location coordinates out of range")
		}
		if strings.TrimSpace(loc.Address) == "" {
			return nil, validationf("location address is required")
		}
	}

	now := s.now()
	report := &models.CitizenReport{
		ID:            uuid.NewString(),
		CitizenID:     citizenID,
		VehiclePlate:  plate,
		ViolationType: req.ViolationType,
		Description:   strings.TrimSpace(req.Description),
		EvidenceURLs:  evidence,
		Location:      req.LocationData,
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.InsertReport(ctx, report); err != nil {
			return err
		}
		return s.activity.Log(ctx, tx.Queries, report.ID, models.ActivitySubmitted,
			models.Actor{ID: citizenID, Role: models.RoleCitizen},
			fmt.Sprintf("Reported %s for %s", plate, req.ViolationType), now)
	})
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	s.logger.Infow("Report submitted",
		"report_id", report.ID,
		"citizen_id", citizenID,
		"violation_type", report.ViolationType,
		"evidence", len(evidence),
	)
	return report, nil
}

// Get returns a report or ErrNotFound.
func (s *ReportService) Get(ctx context.Context, reportID string) (*models.CitizenReport, error) {
	r, err := s.db.GetReport(ctx, reportID)
	if errors.Is(err, database.ErrNoRows) {
		return nil, notFoundf("report %s", reportID)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetAs returns a report the actor is allowed to see: its owner or staff.
func (s *ReportService) GetAs(ctx context.Context, reportID string, actor models.Actor) (*models.CitizenReport, error) {
	r, err := s.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && r.CitizenID != actor.ID {
		return nil, permissionf("report %s belongs to another citizen", reportID)
	}
	return r, nil
}

// Delete removes a report together with its activity trail. Only its owner
// may delete it, and only while it is still PENDING.
func (s *ReportService) Delete(ctx context.Context, reportID, requesterID string) error {
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		r, err := tx.GetReportForUpdate(ctx, reportID)
		if errors.Is(err, database.ErrNoRows) {
			return notFoundf("report %s", reportID)
		}
		if err != nil {
			return err
		}

		if r.CitizenID != requesterID {
			return permissionf("only the reporting citizen may delete report %s", reportID)
		}
		if r.Status != models.StatusPending {
			return invalidStatef("report %s is %s and can no longer be deleted", reportID, r.Status)
		}

		err = tx.DeletePendingReport(ctx, reportID)
		if errors.Is(err, database.ErrStaleWrite) {
			return invalidStatef("report %s was reviewed concurrently", reportID)
		}
		if err != nil {
			return err
		}
		return tx.DeleteActivity(ctx, reportID)
	})
	if err != nil {
		return err
	}

	s.logger.Infow("Report deleted", "report_id", reportID, "citizen_id", requesterID)
	return nil
}

// ListMine returns a page of the citizen's own reports.
func (s *ReportService) ListMine(ctx context.Context, citizenID string, f models.ReportFilter) (*models.ReportPage, error) {
	f.CitizenID = citizenID
	return s.list(ctx, f)
}

// ListForReview returns a page of reports for the police queue.
func (s *ReportService) ListForReview(ctx context.Context, f models.ReportFilter) (*models.ReportPage, error) {
	return s.list(ctx, f)
}

func (s *ReportService) list(ctx context.Context, f models.ReportFilter) (*models.ReportPage, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationf("unknown status %q", f.Status)
	}
	if f.ViolationType != "" && !f.ViolationType.Valid() {
		return nil, validationf("unknown violation type %q", f.ViolationType)
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return nil, validationf("dateTo is before dateFrom")
	}

	reports, total, err := s.db.ListReports(ctx, f)
	if err != nil {
		return nil, err
	}

	page, limit := database.NormalizePage(f.Page, f.Limit)
	return &models.ReportPage{
		Data:       reports,
		Pagination: models.NewPagination(page, limit, total),
	}, nil
}

// ViolationTypeDistribution counts reports per violation type.
func (s *ReportService) ViolationTypeDistribution(ctx context.Context) ([]models.CategoryDistribution, error) {
	return s.db.CountByViolationType(ctx)
}

// StatusSummary counts reports per base status.
func (s *ReportService) StatusSummary(ctx context.Context) ([]models.CategoryDistribution, error) {
	return s.db.CountByStatus(ctx)
}

// Trend returns daily report counts for the last days days.
func (s *ReportService) Trend(ctx context.Context, days int) ([]models.AnalyticsTrend, error) {
	if days <= 0 || days > 365 {
		return nil, validationf("days must be between 1 and 365")
	}
	since := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -days+1)
	return s.db.DailyTrend(ctx, since)
}
