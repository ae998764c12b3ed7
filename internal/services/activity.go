package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActivityLogService keeps the per-report audit trail so every adjudication
// step stays attributable to an actor.
type ActivityLogService struct {
	db     *database.DB
	logger *zap.SugaredLogger
}

// NewActivityLogService creates a new activity log service
func NewActivityLogService(db *database.DB, logger *zap.SugaredLogger) *ActivityLogService {
	return &ActivityLogService{db: db, logger: logger}
}

// Log records an action against a report using q, which may be a transaction.
func (s *ActivityLogService) Log(ctx context.Context, q *database.Queries, reportID, activityType string, actor models.Actor, description string, at time.Time) error {
	entry := &models.ReportActivity{
		ID:           uuid.NewString(),
		ReportID:     reportID,
		ActivityType: activityType,
		ActorID:      actor.ID,
		ActorRole:    string(actor.Role),
		Description:  description,
		CreatedAt:    at,
	}
	if err := q.InsertActivity(ctx, entry); err != nil {
		return fmt.Errorf("log activity: %w", err)
	}

	s.logger.Debugw("Activity logged",
		"report_id", reportID,
		"actor", actor.ID,
		"type", activityType,
	)
	return nil
}

// FetchByReport returns the audit trail of a report, newest first.
func (s *ActivityLogService) FetchByReport(ctx context.Context, reportID string, limit int) ([]models.ReportActivity, error) {
	return s.db.ListActivity(ctx, reportID, limit)
}
