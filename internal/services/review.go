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
	"go.uber.org/zap"
)

// ReviewService moves PENDING reports to their verdict and settles the
// reward or penalty in the same transaction.
type ReviewService struct {
	db       *database.DB
	ledger   *LedgerService
	debts    *DebtService
	activity *ActivityLogService
	pricing  policy.Pricing
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewReviewService creates a new review service
func NewReviewService(db *database.DB, ledger *LedgerService, debts *DebtService, activity *ActivityLogService, pricing policy.Pricing, logger *zap.SugaredLogger) *ReviewService {
	return &ReviewService{
		db:       db,
		ledger:   ledger,
		debts:    debts,
		activity: activity,
		pricing:  pricing,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *ReviewService) SetClock(now func() time.Time) { s.now = now }

// Review records the verdict on a pending report. amount overrides the
// pricing default when set. A report is reviewed exactly once: any later
// call fails with ErrInvalidState and settles nothing.
func (s *ReviewService) Review(ctx context.Context, reportID string, reviewer models.Actor, decision models.ReportStatus, notes string, amount *int64) (*models.CitizenReport, error) {
	if !decision.IsDecision() {
		return nil, validationf("decision must be APPROVED or REJECTED, got %q", decision)
	}
	if strings.TrimSpace(reviewer.ID) == "" {
		return nil, validationf("reviewer id is required")
	}
	if amount != nil && *amount <= 0 {
		return nil, validationf("amount must be positive")
	}

	var report *models.CitizenReport
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		r, err := tx.GetReportForUpdate(ctx, reportID)
		if errors.Is(err, database.ErrNoRows) {
			return notFoundf("report %s", reportID)
		}
		if err != nil {
			return err
		}
		if r.Status != models.StatusPending {
			return invalidStatef("report %s is already %s", reportID, r.Status)
		}

		now := s.now()
		review := models.Review{ReviewerID: reviewer.ID, Notes: notes, ReviewedAt: now}

		var value int64
		t := &models.SettlementTransaction{
			UserID:          r.CitizenID,
			Source:          models.SourceCitizenReport,
			RelatedReportID: &r.ID,
			Status:          models.TxStatusCompleted,
			CreatedAt:       now,
		}
		if decision == models.StatusApproved {
			value = s.pricing.RewardFor(r.ViolationType)
			if amount != nil {
				value = *amount
			}
			r.RewardAmount = &value
			t.Type, t.Amount = models.TxReward, value
			t.Description = fmt.Sprintf("Reward for report on %s", r.VehiclePlate)
		} else {
			value = s.pricing.PenaltyFor(r.ViolationType)
			if amount != nil {
				value = *amount
			}
			r.PenaltyAmount = &value
			t.Type, t.Amount = models.TxPenalty, -value
			t.Description = fmt.Sprintf("Penalty for rejected report on %s", r.VehiclePlate)
		}

		err = tx.ApplyReview(ctx, r.ID, decision, review, r.RewardAmount, r.PenaltyAmount, now)
		if errors.Is(err, database.ErrStaleWrite) {
			return invalidStatef("report %s was reviewed concurrently", reportID)
		}
		if err != nil {
			return err
		}

		if err := s.ledger.Record(ctx, tx.Queries, t); err != nil {
			return err
		}
		if decision == models.StatusRejected {
			if _, err := s.debts.Open(ctx, tx.Queries, t); err != nil {
				return err
			}
		}

		if err := s.activity.Log(ctx, tx.Queries, r.ID, models.ActivityReviewed, reviewer,
			fmt.Sprintf("Report %s, amount %d", strings.ToLower(string(decision)), value), now); err != nil {
			return err
		}

		r.Status = decision
		r.Review = &review
		r.UpdatedAt = now
		report = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Report reviewed",
		"report_id", report.ID,
		"reviewer_id", reviewer.ID,
		"decision", decision,
	)
	return report, nil
}
