package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aawaaz/citizen-report-server/internal/models"
)

const transactionColumns = `id, user_id, amount, type, source, related_report_id, status, description, created_at`

func scanTransaction(row rowScanner) (*models.SettlementTransaction, error) {
	var (
		t         models.SettlementTransaction
		related   sql.NullString
		createdAt scanTime
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Source, &related,
		&t.Status, &t.Description, &createdAt); err != nil {
		return nil, err
	}
	t.RelatedReportID = stringPtr(related)
	t.CreatedAt = createdAt.Time
	return &t, nil
}

// InsertTransaction appends a ledger entry. A second COMPLETED entry for the
// same (related_report_id, type) fails with ErrUniqueViolation.
func (q *Queries) InsertTransaction(ctx context.Context, t *models.SettlementTransaction) error {
	_, err := q.exec(ctx, `
		INSERT INTO settlement_transactions (id, user_id, amount, type, source, related_report_id, status, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Amount, string(t.Type), string(t.Source), nullString(t.RelatedReportID),
		string(t.Status), t.Description, timestamp(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// CompletedTransactionExists reports whether a report has already been
// settled with the given transaction type.
func (q *Queries) CompletedTransactionExists(ctx context.Context, reportID string, typ models.TransactionType) (bool, error) {
	var n int
	err := q.queryRow(ctx, `
		SELECT COUNT(*) FROM settlement_transactions
		WHERE related_report_id = ? AND type = ? AND status = 'COMPLETED'`,
		reportID, string(typ),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check settlement for %s: %w", reportID, err)
	}
	return n > 0, nil
}

// SumCompleted returns the sum of a user's COMPLETED transactions.
func (q *Queries) SumCompleted(ctx context.Context, userID string) (int64, error) {
	var sum sql.NullInt64
	err := q.queryRow(ctx, `
		SELECT SUM(amount) FROM settlement_transactions
		WHERE user_id = ? AND status = 'COMPLETED'`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum balance for %s: %w", userID, err)
	}
	return sum.Int64, nil
}

// ListTransactions returns one page of a user's ledger, newest first, and the
// total number of entries.
func (q *Queries) ListTransactions(ctx context.Context, userID string, page, limit int) ([]models.SettlementTransaction, int, error) {
	var total int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM settlement_transactions WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	page, limit = NormalizePage(page, limit)
	rows, err := q.query(ctx, `SELECT `+transactionColumns+` FROM settlement_transactions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]models.SettlementTransaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, total, rows.Err()
}

// ListTransactionsByReport returns every entry settled against a report.
func (q *Queries) ListTransactionsByReport(ctx context.Context, reportID string) ([]models.SettlementTransaction, error) {
	return q.listTransactions(ctx, `SELECT `+transactionColumns+` FROM settlement_transactions
		WHERE related_report_id = ? ORDER BY created_at, id`, reportID)
}

// AllTransactions returns the full ledger in insertion order.
func (q *Queries) AllTransactions(ctx context.Context) ([]models.SettlementTransaction, error) {
	return q.listTransactions(ctx, `SELECT `+transactionColumns+` FROM settlement_transactions ORDER BY created_at, id`)
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...any) ([]models.SettlementTransaction, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.SettlementTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// LockUser serializes balance-dependent writes for one user until the
// transaction ends. SQLite already runs a single writer.
func (q *Queries) LockUser(ctx context.Context, userID string) error {
	if q.dialect != Postgres {
		return nil
	}
	if _, err := q.exec(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, userID); err != nil {
		return fmt.Errorf("lock user %s: %w", userID, err)
	}
	return nil
}
