package database

import (
	"context"
	"fmt"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/models"
)

// CountByViolationType returns report counts per violation type for charts.
func (q *Queries) CountByViolationType(ctx context.Context) ([]models.CategoryDistribution, error) {
	return q.distribution(ctx, `
		SELECT violation_type, COUNT(*) AS count
		FROM citizen_reports
		GROUP BY violation_type
		ORDER BY count DESC, violation_type`)
}

// CountByStatus returns report counts per review status.
func (q *Queries) CountByStatus(ctx context.Context) ([]models.CategoryDistribution, error) {
	return q.distribution(ctx, `
		SELECT status, COUNT(*) AS count
		FROM citizen_reports
		GROUP BY status
		ORDER BY count DESC, status`)
}

func (q *Queries) distribution(ctx context.Context, query string) ([]models.CategoryDistribution, error) {
	rows, err := q.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distribution: %w", err)
	}
	defer rows.Close()

	cats := []models.CategoryDistribution{}
	for rows.Next() {
		var c models.CategoryDistribution
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// DailyTrend returns report submissions per day since the given time.
func (q *Queries) DailyTrend(ctx context.Context, since time.Time) ([]models.AnalyticsTrend, error) {
	day := "to_char(created_at, 'YYYY-MM-DD')"
	if q.dialect == SQLite {
		day = "substr(created_at, 1, 10)"
	}

	rows, err := q.query(ctx, `
		SELECT `+day+` AS day, COUNT(*) AS count
		FROM citizen_reports
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day DESC`, timestamp(since))
	if err != nil {
		return nil, fmt.Errorf("query trend: %w", err)
	}
	defer rows.Close()

	trends := []models.AnalyticsTrend{}
	for rows.Next() {
		var t models.AnalyticsTrend
		if err := rows.Scan(&t.Date, &t.Count); err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		trends = append(trends, t)
	}
	return trends, rows.Err()
}
