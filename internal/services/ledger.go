package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerService is the append-only settlement log. Balances are always
// derived from it, never stored.
type LedgerService struct {
	db     *database.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db *database.DB, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{db: db, logger: logger, now: time.Now}
}

// SetClock replaces the time source.
func (s *LedgerService) SetClock(now func() time.Time) { s.now = now }

// Record appends t using q, which is normally the caller's transaction.
// A second COMPLETED entry for the same report and type fails with
// ErrDuplicate.
func (s *LedgerService) Record(ctx context.Context, q *database.Queries, t *models.SettlementTransaction) error {
	if t.UserID == "" {
		return validationf("transaction user is required")
	}
	if err := checkSign(t.Type, t.Amount); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TxStatusCompleted
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	if t.RelatedReportID != nil && t.Status == models.TxStatusCompleted {
		exists, err := q.CompletedTransactionExists(ctx, *t.RelatedReportID, t.Type)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: report %s already has a %s entry", ErrDuplicate, *t.RelatedReportID, t.Type)
		}
	}

	err := q.InsertTransaction(ctx, t)
	if errors.Is(err, database.ErrUniqueViolation) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	if err != nil {
		return err
	}

	s.logger.Infow("Settlement recorded",
		"transaction_id", t.ID,
		"user_id", t.UserID,
		"type", t.Type,
		"amount", t.Amount,
	)
	return nil
}

func checkSign(typ models.TransactionType, amount int64) error {
	switch typ {
	case models.TxReward, models.TxBonus:
		if amount <= 0 {
			return validationf("%s amount must be positive", typ)
		}
	case models.TxPenalty, models.TxDeduction:
		if amount >= 0 {
			return validationf("%s amount must be negative", typ)
		}
	default:
		return validationf("unknown transaction type %q", typ)
	}
	return nil
}

// BalanceFor sums the user's COMPLETED transactions.
func (s *LedgerService) BalanceFor(ctx context.Context, userID string) (int64, error) {
	return s.db.SumCompleted(ctx, userID)
}

// Balance returns the ledger balance together with what the user still owes
// on open debts.
func (s *LedgerService) Balance(ctx context.Context, userID string) (*models.Balance, error) {
	bal, err := s.BalanceFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	owed, err := s.db.SumOpenDebt(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.Balance{UserID: userID, CurrentBalance: bal, OutstandingDue: owed}, nil
}

// Page returns one page of the user's ledger, newest first.
func (s *LedgerService) Page(ctx context.Context, userID string, page, limit int) (*models.TransactionPage, error) {
	page, limit = database.NormalizePage(page, limit)
	txs, total, err := s.db.ListTransactions(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []models.SettlementTransaction{}
	}
	return &models.TransactionPage{Data: txs, Pagination: models.NewPagination(page, limit, total)}, nil
}

// History walks the user's ledger page by page, newest first. Pages are
// fetched only as the caller ranges over them; every range starts again from
// the first page.
func (s *LedgerService) History(ctx context.Context, userID string, pageSize int) iter.Seq2[models.TransactionPage, error] {
	return func(yield func(models.TransactionPage, error) bool) {
		for page := 1; ; page++ {
			p, err := s.Page(ctx, userID, page, pageSize)
			if err != nil {
				yield(models.TransactionPage{}, err)
				return
			}
			if len(p.Data) == 0 {
				return
			}
			if !yield(*p, nil) {
				return
			}
			if page >= p.Pagination.TotalPages {
				return
			}
		}
	}
}

// ForReport lists the entries settled against a report.
func (s *LedgerService) ForReport(ctx context.Context, reportID string) ([]models.SettlementTransaction, error) {
	return s.db.ListTransactionsByReport(ctx, reportID)
}

// Withdraw pays out part of the user's positive balance.
func (s *LedgerService) Withdraw(ctx context.Context, userID string, amount int64) (*models.SettlementTransaction, error) {
	if amount <= 0 {
		return nil, validationf("withdrawal amount must be positive")
	}

	t := &models.SettlementTransaction{
		UserID:      userID,
		Amount:      -amount,
		Type:        models.TxDeduction,
		Source:      models.SourceSystem,
		Status:      models.TxStatusCompleted,
		Description: "Reward withdrawal",
	}
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		bal, err := tx.SumCompleted(ctx, userID)
		if err != nil {
			return err
		}
		if amount > bal {
			return validationf("withdrawal of %d exceeds balance %d", amount, bal)
		}
		return s.Record(ctx, tx.Queries, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
