package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/models"
)

const debtColumns = `id, user_id, transaction_id, related_report_id, original_amount, current_amount,
	weeks_past_due, due_date, status, paid_amount, paid_at, payment_method, payment_reference,
	last_accrual_key, created_at, updated_at`

func scanDebt(row rowScanner) (*models.OutstandingDebt, error) {
	var (
		d                          models.OutstandingDebt
		related, method, reference sql.NullString
		accrualKey                 sql.NullString
		dueDate, paidAt            scanTime
		createdAt, updatedAt       scanTime
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.TransactionID, &related, &d.OriginalAmount, &d.CurrentAmount,
		&d.WeeksPastDue, &dueDate, &d.Status, &d.PaidAmount, &paidAt, &method, &reference,
		&accrualKey, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.RelatedReportID = stringPtr(related)
	d.LateFees = d.CurrentAmount - d.OriginalAmount
	d.DueDate = dueDate.Time
	d.PaidAt = paidAt.ptr()
	d.PaymentMethod = method.String
	d.PaymentReference = reference.String
	d.LastAccrualKey = accrualKey.String
	d.CreatedAt = createdAt.Time
	d.UpdatedAt = updatedAt.Time
	return &d, nil
}

// InsertDebt stores a newly opened debt.
func (q *Queries) InsertDebt(ctx context.Context, d *models.OutstandingDebt) error {
	_, err := q.exec(ctx, `
		INSERT INTO debts (id, user_id, transaction_id, related_report_id, original_amount, current_amount,
			weeks_past_due, due_date, status, paid_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.TransactionID, nullString(d.RelatedReportID), d.OriginalAmount, d.CurrentAmount,
		d.WeeksPastDue, timestamp(d.DueDate), string(d.Status), d.PaidAmount,
		timestamp(d.CreatedAt), timestamp(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert debt: %w", err)
	}
	return nil
}

// GetDebt loads a debt by id. Returns ErrNoRows when it does not exist.
func (q *Queries) GetDebt(ctx context.Context, id string) (*models.OutstandingDebt, error) {
	return q.getDebt(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = ?`, id)
}

// GetDebtForUpdate loads a debt and locks its row until the transaction ends.
func (q *Queries) GetDebtForUpdate(ctx context.Context, id string) (*models.OutstandingDebt, error) {
	return q.getDebt(ctx, q.forUpdate(`SELECT `+debtColumns+` FROM debts WHERE id = ?`), id)
}

func (q *Queries) getDebt(ctx context.Context, query, id string) (*models.OutstandingDebt, error) {
	d, err := scanDebt(q.queryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get debt %s: %w", id, err)
	}
	return d, nil
}

// ListDebtsByUser returns a user's debts, most recent first.
func (q *Queries) ListDebtsByUser(ctx context.Context, userID string) ([]models.OutstandingDebt, error) {
	return q.listDebts(ctx, `SELECT `+debtColumns+` FROM debts WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// ListOpenDebtsByReport returns the open debts settled against a report.
func (q *Queries) ListOpenDebtsByReport(ctx context.Context, reportID string) ([]models.OutstandingDebt, error) {
	return q.listDebts(ctx, `SELECT `+debtColumns+` FROM debts
		WHERE related_report_id = ? AND status IN ('OUTSTANDING', 'PARTIAL')
		ORDER BY created_at, id`, reportID)
}

// ListOverdueDebts returns open debts whose due date is before now.
func (q *Queries) ListOverdueDebts(ctx context.Context, now time.Time) ([]models.OutstandingDebt, error) {
	return q.listDebts(ctx, `SELECT `+debtColumns+` FROM debts
		WHERE status IN ('OUTSTANDING', 'PARTIAL') AND due_date < ?
		ORDER BY due_date, id`, timestamp(now))
}

// SumOpenDebt returns what a user still owes across open debts.
func (q *Queries) SumOpenDebt(ctx context.Context, userID string) (int64, error) {
	var sum sql.NullInt64
	err := q.queryRow(ctx, `
		SELECT SUM(current_amount - paid_amount) FROM debts
		WHERE user_id = ? AND status IN ('OUTSTANDING', 'PARTIAL')`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum debt for %s: %w", userID, err)
	}
	return sum.Int64, nil
}

func (q *Queries) listDebts(ctx context.Context, query string, args ...any) ([]models.OutstandingDebt, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query debts: %w", err)
	}
	defer rows.Close()

	debts := []models.OutstandingDebt{}
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		debts = append(debts, *d)
	}
	return debts, rows.Err()
}

// ApplyAccrual records a late-fee recomputation for period key, unless the
// debt was already accrued in that period. The amount can only grow.
func (q *Queries) ApplyAccrual(ctx context.Context, id string, weeks int, currentAmount int64, periodKey string, now time.Time) error {
	res, err := q.exec(ctx, `
		UPDATE debts
		SET weeks_past_due = ?, current_amount = ?, last_accrual_key = ?, updated_at = ?
		WHERE id = ? AND status IN ('OUTSTANDING', 'PARTIAL')
			AND current_amount <= ?
			AND (last_accrual_key IS NULL OR last_accrual_key <> ?)`,
		weeks, currentAmount, periodKey, timestamp(now),
		id, currentAmount, periodKey,
	)
	if err != nil {
		return fmt.Errorf("accrue debt %s: %w", id, err)
	}
	return expectOne(res)
}

// ApplyPayment records a payment, guarded on the previously read paid amount.
func (q *Queries) ApplyPayment(ctx context.Context, d *models.OutstandingDebt, prevPaid int64) error {
	res, err := q.exec(ctx, `
		UPDATE debts
		SET paid_amount = ?, status = ?, paid_at = ?, payment_method = ?, payment_reference = ?, updated_at = ?
		WHERE id = ? AND paid_amount = ? AND status IN ('OUTSTANDING', 'PARTIAL')`,
		d.PaidAmount, string(d.Status), nullTimestamp(d.PaidAt), d.PaymentMethod, d.PaymentReference,
		timestamp(d.UpdatedAt), d.ID, prevPaid,
	)
	if err != nil {
		return fmt.Errorf("apply payment to %s: %w", d.ID, err)
	}
	return expectOne(res)
}

// WaiveDebt closes an open debt without payment.
func (q *Queries) WaiveDebt(ctx context.Context, id string, now time.Time) error {
	res, err := q.exec(ctx, `
		UPDATE debts SET status = 'WAIVED', updated_at = ?
		WHERE id = ? AND status IN ('OUTSTANDING', 'PARTIAL')`,
		timestamp(now), id,
	)
	if err != nil {
		return fmt.Errorf("waive debt %s: %w", id, err)
	}
	return expectOne(res)
}
