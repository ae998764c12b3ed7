package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/models"
)

const reportColumns = `id, citizen_id, vehicle_plate, violation_type, description, evidence_urls,
	latitude, longitude, address, city, district, division, status,
	reviewer_id, review_notes, reviewed_at, reward_amount, penalty_amount,
	appeal_reason, appeal_filed_at, appeal_status, appeal_reviewer_id, appeal_notes,
	additional_penalty_amount, appeal_reviewed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*models.CitizenReport, error) {
	var (
		r                               models.CitizenReport
		evidence                        string
		lat, lng                        sql.NullFloat64
		address, city, district, div    sql.NullString
		reviewerID, reviewNotes         sql.NullString
		reviewedAt                      scanTime
		reward, penalty                 sql.NullInt64
		appealReason, appealStatus      sql.NullString
		appealReviewer, appealNotes     sql.NullString
		appealFiledAt, appealReviewedAt scanTime
		additional                      sql.NullInt64
		createdAt, updatedAt            scanTime
	)

	err := row.Scan(&r.ID, &r.CitizenID, &r.VehiclePlate, &r.ViolationType, &r.Description, &evidence,
		&lat, &lng, &address, &city, &district, &div, &r.Status,
		&reviewerID, &reviewNotes, &reviewedAt, &reward, &penalty,
		&appealReason, &appealFiledAt, &appealStatus, &appealReviewer, &appealNotes,
		&additional, &appealReviewedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(evidence), &r.EvidenceURLs); err != nil {
		return nil, fmt.Errorf("decode evidence urls for report %s: %w", r.ID, err)
	}

	if address.Valid {
		r.Location = &models.Location{
			Latitude:  lat.Float64,
			Longitude: lng.Float64,
			Address:   address.String,
			City:      city.String,
			District:  district.String,
			Division:  div.String,
		}
	}

	if reviewedAt.Valid {
		r.Review = &models.Review{
			ReviewerID: reviewerID.String,
			Notes:      reviewNotes.String,
			ReviewedAt: reviewedAt.Time,
		}
	}
	r.RewardAmount = intPtr(reward)
	r.PenaltyAmount = intPtr(penalty)

	if appealFiledAt.Valid {
		r.Appeal = &models.Appeal{Reason: appealReason.String, FiledAt: appealFiledAt.Time}
		if appealReviewedAt.Valid {
			r.Appeal.Resolution = &models.AppealResolution{
				Decision:          models.ReportStatus(appealStatus.String),
				ReviewerID:        appealReviewer.String,
				Notes:             appealNotes.String,
				AdditionalPenalty: intPtr(additional),
				ReviewedAt:        appealReviewedAt.Time,
			}
		}
	}

	r.CreatedAt = createdAt.Time
	r.UpdatedAt = updatedAt.Time
	return &r, nil
}

// InsertReport stores a new report.
func (q *Queries) InsertReport(ctx context.Context, r *models.CitizenReport) error {
	evidence, err := json.Marshal(r.EvidenceURLs)
	if err != nil {
		return fmt.Errorf("encode evidence urls: %w", err)
	}

	var lat, lng, address, city, district, division any
	if loc := r.Location; loc != nil {
		lat, lng, address = loc.Latitude, loc.Longitude, loc.Address
		city, district, division = loc.City, loc.District, loc.Division
	}

	_, err = q.exec(ctx, `
		INSERT INTO citizen_reports (id, citizen_id, vehicle_plate, violation_type, description, evidence_urls,
			latitude, longitude, address, city, district, division, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CitizenID, r.VehiclePlate, string(r.ViolationType), r.Description, string(evidence),
		lat, lng, address, city, district, division, string(r.Status),
		timestamp(r.CreatedAt), timestamp(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport loads a report by id. Returns ErrNoRows when it does not exist.
func (q *Queries) GetReport(ctx context.Context, id string) (*models.CitizenReport, error) {
	return q.getReport(ctx, `SELECT `+reportColumns+` FROM citizen_reports WHERE id = ?`, id)
}

// GetReportForUpdate loads a report and locks its row until the transaction ends.
func (q *Queries) GetReportForUpdate(ctx context.Context, id string) (*models.CitizenReport, error) {
	return q.getReport(ctx, q.forUpdate(`SELECT `+reportColumns+` FROM citizen_reports WHERE id = ?`), id)
}

func (q *Queries) getReport(ctx context.Context, query, id string) (*models.CitizenReport, error) {
	r, err := scanReport(q.queryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return r, nil
}

// DeletePendingReport removes a report that has not been reviewed yet.
func (q *Queries) DeletePendingReport(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `DELETE FROM citizen_reports WHERE id = ? AND status = 'PENDING'`, id)
	if err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	return expectOne(res)
}

// ApplyReview writes the verdict and its amount in one statement, only if the
// report is still pending.
func (q *Queries) ApplyReview(ctx context.Context, id string, status models.ReportStatus, review models.Review, reward, penalty *int64, now time.Time) error {
	res, err := q.exec(ctx, `
		UPDATE citizen_reports
		SET status = ?, reviewer_id = ?, review_notes = ?, reviewed_at = ?,
			reward_amount = ?, penalty_amount = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		string(status), review.ReviewerID, review.Notes, timestamp(review.ReviewedAt),
		nullInt(reward), nullInt(penalty), timestamp(now), id,
	)
	if err != nil {
		return fmt.Errorf("apply review to %s: %w", id, err)
	}
	return expectOne(res)
}

// FileAppeal opens the appeal on a rejected report that has none yet.
func (q *Queries) FileAppeal(ctx context.Context, id, reason string, now time.Time) error {
	res, err := q.exec(ctx, `
		UPDATE citizen_reports
		SET appeal_reason = ?, appeal_filed_at = ?, appeal_status = 'PENDING', updated_at = ?
		WHERE id = ? AND status = 'REJECTED' AND appeal_filed_at IS NULL`,
		reason, timestamp(now), timestamp(now), id,
	)
	if err != nil {
		return fmt.Errorf("file appeal on %s: %w", id, err)
	}
	return expectOne(res)
}

// ResolveAppeal writes the appeal decision, only if the appeal is pending.
func (q *Queries) ResolveAppeal(ctx context.Context, id string, res models.AppealResolution, now time.Time) error {
	result, err := q.exec(ctx, `
		UPDATE citizen_reports
		SET appeal_status = ?, appeal_reviewer_id = ?, appeal_notes = ?,
			additional_penalty_amount = ?, appeal_reviewed_at = ?, updated_at = ?
		WHERE id = ? AND appeal_status = 'PENDING'`,
		string(res.Decision), res.ReviewerID, res.Notes,
		nullInt(res.AdditionalPenalty), timestamp(res.ReviewedAt), timestamp(now), id,
	)
	if err != nil {
		return fmt.Errorf("resolve appeal on %s: %w", id, err)
	}
	return expectOne(result)
}

// ListReports returns one page of reports matching f, newest first, and the
// total number of matches.
func (q *Queries) ListReports(ctx context.Context, f models.ReportFilter) ([]models.CitizenReport, int, error) {
	var (
		where []string
		args  []any
	)
	if f.CitizenID != "" {
		where = append(where, "citizen_id = ?")
		args = append(args, f.CitizenID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ViolationType != "" {
		where = append(where, "violation_type = ?")
		args = append(args, string(f.ViolationType))
	}
	if f.AppealPending {
		where = append(where, "appeal_status = 'PENDING'")
	}
	if f.Search != "" {
		where = append(where, "(LOWER(vehicle_plate) LIKE ? OR LOWER(description) LIKE ?)")
		pattern := "%" + strings.ToLower(f.Search) + "%"
		args = append(args, pattern, pattern)
	}
	if f.DateFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, timestamp(*f.DateFrom))
	}
	if f.DateTo != nil {
		where = append(where, "created_at <= ?")
		args = append(args, timestamp(*f.DateTo))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := q.queryRow(ctx, "SELECT COUNT(*) FROM citizen_reports"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	page, limit := NormalizePage(f.Page, f.Limit)
	rows, err := q.query(ctx, "SELECT "+reportColumns+" FROM citizen_reports"+clause+
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := make([]models.CitizenReport, 0, limit)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, total, rows.Err()
}

// Page size bounds shared by every listing.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps page and limit to the accepted range.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}
