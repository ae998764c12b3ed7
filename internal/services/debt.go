package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/aawaaz/citizen-report-server/internal/policy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DebtService turns unpaid penalties into debts that age into late fees.
// Payments toward the original penalty are credited back to the ledger as
// FINE_PAYMENT entries; late fees were never booked there, so paying them
// credits nothing.
type DebtService struct {
	db       *database.DB
	ledger   *LedgerService
	fees     policy.LateFees
	dueAfter time.Duration
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// AccrualResult summarizes one accrual run.
type AccrualResult struct {
	PeriodKey string `json:"periodKey"`
	Checked   int    `json:"checked"`
	Accrued   int    `json:"accrued"`
}

// NewDebtService creates a new debt service. Debts fall due dueAfter their
// penalty was settled.
func NewDebtService(db *database.DB, ledger *LedgerService, fees policy.LateFees, dueAfter time.Duration, logger *zap.SugaredLogger) *DebtService {
	return &DebtService{db: db, ledger: ledger, fees: fees, dueAfter: dueAfter, logger: logger, now: time.Now}
}

// SetClock replaces the time source.
func (s *DebtService) SetClock(now func() time.Time) { s.now = now }

// Open creates the debt for a negative settlement inside the caller's
// transaction.
func (s *DebtService) Open(ctx context.Context, q *database.Queries, t *models.SettlementTransaction) (*models.OutstandingDebt, error) {
	if t.Amount >= 0 {
		return nil, validationf("only debits open a debt")
	}

	d := &models.OutstandingDebt{
		ID:              uuid.NewString(),
		UserID:          t.UserID,
		TransactionID:   t.ID,
		RelatedReportID: t.RelatedReportID,
		OriginalAmount:  -t.Amount,
		CurrentAmount:   -t.Amount,
		DueDate:         t.CreatedAt.Add(s.dueAfter),
		Status:          models.DebtOutstanding,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.CreatedAt,
	}
	if err := q.InsertDebt(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Infow("Debt opened",
		"debt_id", d.ID,
		"user_id", d.UserID,
		"amount", d.OriginalAmount,
		"due", d.DueDate,
	)
	return d, nil
}

// WaiveForReport closes every open debt settled against a report.
func (s *DebtService) WaiveForReport(ctx context.Context, q *database.Queries, reportID string, now time.Time) (int, error) {
	debts, err := q.ListOpenDebtsByReport(ctx, reportID)
	if err != nil {
		return 0, err
	}
	for _, d := range debts {
		if err := q.WaiveDebt(ctx, d.ID, now); err != nil {
			if errors.Is(err, database.ErrStaleWrite) {
				return 0, conflictf("debt %s changed while being waived", d.ID)
			}
			return 0, err
		}
	}
	return len(debts), nil
}

// Accrue recomputes the late fee of one debt as of now. It applies at most
// once per ISO week; the returned flag reports whether this call changed it.
func (s *DebtService) Accrue(ctx context.Context, debt *models.OutstandingDebt, now time.Time) (*models.OutstandingDebt, bool, error) {
	if !debt.Status.Open() {
		return debt, false, nil
	}

	key := policy.PeriodKey(now)
	if debt.LastAccrualKey == key {
		return debt, false, nil
	}

	weeks := policy.WeeksPastDue(debt.DueDate, now)
	amount := debt.OriginalAmount + s.fees.Fee(debt.OriginalAmount, weeks)
	if amount < debt.CurrentAmount {
		amount = debt.CurrentAmount
	}

	err := s.db.ApplyAccrual(ctx, debt.ID, weeks, amount, key, now)
	if errors.Is(err, database.ErrStaleWrite) {
		return debt, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	updated := *debt
	updated.WeeksPastDue = weeks
	updated.CurrentAmount = amount
	updated.LateFees = amount - debt.OriginalAmount
	updated.LastAccrualKey = key
	updated.UpdatedAt = now
	return &updated, true, nil
}

// AccrueDue runs Accrue over every open debt past its due date.
func (s *DebtService) AccrueDue(ctx context.Context, now time.Time) (*AccrualResult, error) {
	debts, err := s.db.ListOverdueDebts(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &AccrualResult{PeriodKey: policy.PeriodKey(now), Checked: len(debts)}
	for i := range debts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, applied, err := s.Accrue(ctx, &debts[i], now)
		if err != nil {
			return result, fmt.Errorf("accrue debt %s: %w", debts[i].ID, err)
		}
		if applied {
			result.Accrued++
		}
	}

	s.logger.Infow("Debt accrual finished",
		"period", result.PeriodKey,
		"checked", result.Checked,
		"accrued", result.Accrued,
	)
	return result, nil
}

// Pay applies a payment from payerID to a debt.
func (s *DebtService) Pay(ctx context.Context, debtID, payerID string, amount int64, method string) (*models.OutstandingDebt, error) {
	if amount <= 0 {
		return nil, validationf("payment amount must be positive")
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, validationf("payment method is required")
	}

	var paid *models.OutstandingDebt
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		d, err := tx.GetDebtForUpdate(ctx, debtID)
		if errors.Is(err, database.ErrNoRows) {
			return notFoundf("debt %s", debtID)
		}
		if err != nil {
			return err
		}

		if d.UserID != payerID {
			return permissionf("debt %s belongs to another user", debtID)
		}
		if !d.Status.Open() {
			return invalidStatef("debt %s is %s", debtID, d.Status)
		}
		if remaining := d.Remaining(); amount > remaining {
			return validationf("payment of %d exceeds remaining %d", amount, remaining)
		}

		now := s.now()
		prevPaid := d.PaidAmount
		d.PaidAmount += amount
		d.Status = models.DebtPartial
		if d.PaidAmount == d.CurrentAmount {
			d.Status = models.DebtPaid
		}
		d.PaidAt = &now
		d.PaymentMethod = method
		d.PaymentReference = "PAY-" + strings.ToUpper(uuid.NewString()[:8])
		d.UpdatedAt = now

		err = tx.ApplyPayment(ctx, d, prevPaid)
		if errors.Is(err, database.ErrStaleWrite) {
			return conflictf("debt %s was paid concurrently", debtID)
		}
		if err != nil {
			return err
		}

		// no related report: repeat partial payments must not trip the
		// one-entry-per-report guard
		if credit := penaltyShare(d.OriginalAmount, prevPaid, amount); credit > 0 {
			err = s.ledger.Record(ctx, tx.Queries, &models.SettlementTransaction{
				UserID:      payerID,
				Amount:      credit,
				Type:        models.TxBonus,
				Source:      models.SourceFinePayment,
				Status:      models.TxStatusCompleted,
				Description: fmt.Sprintf("Debt payment %s (%s)", d.PaymentReference, method),
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
		}
		paid = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Debt payment applied",
		"debt_id", paid.ID,
		"user_id", payerID,
		"amount", amount,
		"status", paid.Status,
		"reference", paid.PaymentReference,
	)
	return paid, nil
}

// penaltyShare is the part of a payment that goes toward the original
// penalty. Payments fill the penalty first and the late fees after it.
func penaltyShare(original, prevPaid, amount int64) int64 {
	left := original - prevPaid
	if left <= 0 {
		return 0
	}
	return min(amount, left)
}

// Get loads a debt or fails with ErrNotFound.
func (s *DebtService) Get(ctx context.Context, debtID string) (*models.OutstandingDebt, error) {
	d, err := s.db.GetDebt(ctx, debtID)
	if errors.Is(err, database.ErrNoRows) {
		return nil, notFoundf("debt %s", debtID)
	}
	return d, err
}

// ListForUser returns the user's debts with weeksPastDue derived as of now
// for the open ones. Amounts only change at accrual ticks.
func (s *DebtService) ListForUser(ctx context.Context, userID string) ([]models.OutstandingDebt, error) {
	debts, err := s.db.ListDebtsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range debts {
		if debts[i].Status.Open() {
			debts[i].WeeksPastDue = policy.WeeksPastDue(debts[i].DueDate, now)
		}
	}
	return debts, nil
}
