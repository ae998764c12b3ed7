package database

import (
	"context"
	"fmt"

	"github.com/aawaaz/citizen-report-server/internal/models"
)

// InsertActivity records one entry in a report's audit trail.
func (q *Queries) InsertActivity(ctx context.Context, a *models.ReportActivity) error {
	_, err := q.exec(ctx, `
		INSERT INTO report_activity (id, report_id, activity_type, actor_id, actor_role, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ReportID, a.ActivityType, a.ActorID, a.ActorRole, a.Description, timestamp(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// DeleteActivity drops a report's audit trail.
func (q *Queries) DeleteActivity(ctx context.Context, reportID string) error {
	if _, err := q.exec(ctx, `DELETE FROM report_activity WHERE report_id = ?`, reportID); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return nil
}

// ListActivity returns a report's audit trail, newest first.
func (q *Queries) ListActivity(ctx context.Context, reportID string, limit int) ([]models.ReportActivity, error) {
	rows, err := q.query(ctx, `
		SELECT id, report_id, activity_type, actor_id, actor_role, description, created_at
		FROM report_activity
		WHERE report_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, reportID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	logs := []models.ReportActivity{}
	for rows.Next() {
		var (
			a         models.ReportActivity
			createdAt scanTime
		)
		if err := rows.Scan(&a.ID, &a.ReportID, &a.ActivityType, &a.ActorID,
			&a.ActorRole, &a.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.CreatedAt = createdAt.Time
		logs = append(logs, a)
	}
	return logs, rows.Err()
}
