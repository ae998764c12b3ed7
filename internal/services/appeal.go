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

// AppealService runs the single appeal a citizen may file against a
// rejected report.
//
// A successful appeal refunds the penalty and waives its debt. The base
// status stays REJECTED and the report's effective status becomes APPROVED.
// An unsuccessful one adds a surcharge of AdditionalPenaltyRate per mille of
// the original penalty.
type AppealService struct {
	db       *database.DB
	ledger   *LedgerService
	debts    *DebtService
	activity *ActivityLogService
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewAppealService creates a new appeal service
func NewAppealService(db *database.DB, ledger *LedgerService, debts *DebtService, activity *ActivityLogService, logger *zap.SugaredLogger) *AppealService {
	return &AppealService{
		db:       db,
		ledger:   ledger,
		debts:    debts,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *AppealService) SetClock(now func() time.Time) { s.now = now }

// FileAppeal opens the appeal on a rejected report owned by citizenID.
func (s *AppealService) FileAppeal(ctx context.Context, reportID, citizenID, reason string) (*models.CitizenReport, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationf("appeal reason is required")
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

		if r.Status != models.StatusRejected {
			return invalidStatef("only rejected reports can be appealed, report %s is %s", reportID, r.Status)
		}
		if r.CitizenID != citizenID {
			return permissionf("only the reporting citizen may appeal report %s", reportID)
		}
		if r.Appeal != nil {
			return conflictf("report %s has already been appealed", reportID)
		}

		now := s.now()
		err = tx.FileAppeal(ctx, r.ID, reason, now)
		if errors.Is(err, database.ErrStaleWrite) {
			return conflictf("report %s was appealed concurrently", reportID)
		}
		if err != nil {
			return err
		}

		if err := s.activity.Log(ctx, tx.Queries, r.ID, models.ActivityAppealFiled,
			models.Actor{ID: citizenID, Role: models.RoleCitizen}, reason, now); err != nil {
			return err
		}

		r.Appeal = &models.Appeal{Reason: reason, FiledAt: now}
		r.UpdatedAt = now
		report = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Appeal filed", "report_id", reportID, "citizen_id", citizenID)
	return report, nil
}

// ResolveAppeal decides a pending appeal.
func (s *AppealService) ResolveAppeal(ctx context.Context, reportID string, reviewer models.Actor, decision models.ReportStatus, notes string) (*models.CitizenReport, error) {
	if !decision.IsDecision() {
		return nil, validationf("decision must be APPROVED or REJECTED, got %q", decision)
	}
	if strings.TrimSpace(reviewer.ID) == "" {
		return nil, validationf("reviewer id is required")
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
		if r.Appeal == nil || r.Appeal.Resolution != nil {
			return invalidStatef("report %s has no pending appeal", reportID)
		}
		if r.PenaltyAmount == nil {
			return invalidStatef("report %s carries no penalty to appeal", reportID)
		}

		now := s.now()
		res := &models.AppealResolution{
			Decision:   decision,
			ReviewerID: reviewer.ID,
			Notes:      notes,
			ReviewedAt: now,
		}
		penalty := *r.PenaltyAmount
		if decision == models.StatusRejected {
			extra := policy.AdditionalPenalty(penalty)
			res.AdditionalPenalty = &extra
		}

		err = tx.ResolveAppeal(ctx, r.ID, *res, now)
		if errors.Is(err, database.ErrStaleWrite) {
			return invalidStatef("appeal on report %s was resolved concurrently", reportID)
		}
		if err != nil {
			return err
		}

		var summary string
		if decision == models.StatusApproved {
			refund := &models.SettlementTransaction{
				UserID:          r.CitizenID,
				Amount:          penalty,
				Type:            models.TxBonus,
				Source:          models.SourceCitizenReport,
				RelatedReportID: &r.ID,
				Status:          models.TxStatusCompleted,
				Description:     fmt.Sprintf("Penalty refunded after appeal on %s", r.VehiclePlate),
				CreatedAt:       now,
			}
			if err := s.ledger.Record(ctx, tx.Queries, refund); err != nil {
				return err
			}
			waived, err := s.debts.WaiveForReport(ctx, tx.Queries, r.ID, now)
			if err != nil {
				return err
			}
			summary = fmt.Sprintf("Appeal approved, %d refunded, %d debts waived", penalty, waived)
		} else {
			extra := *res.AdditionalPenalty
			// A surcharge that rounds to zero is recorded on the report only.
			if extra > 0 {
				charge := &models.SettlementTransaction{
					UserID:          r.CitizenID,
					Amount:          -extra,
					Type:            models.TxDeduction,
					Source:          models.SourceCitizenReport,
					RelatedReportID: &r.ID,
					Status:          models.TxStatusCompleted,
					Description:     fmt.Sprintf("Additional penalty for rejected appeal on %s", r.VehiclePlate),
					CreatedAt:       now,
				}
				if err := s.ledger.Record(ctx, tx.Queries, charge); err != nil {
					return err
				}
				if _, err := s.debts.Open(ctx, tx.Queries, charge); err != nil {
					return err
				}
			}
			summary = fmt.Sprintf("Appeal rejected, additional penalty %d", extra)
		}

		if err := s.activity.Log(ctx, tx.Queries, r.ID, models.ActivityAppealResolved, reviewer, summary, now); err != nil {
			return err
		}

		r.Appeal.Resolution = res
		r.UpdatedAt = now
		report = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Appeal resolved",
		"report_id", reportID,
		"reviewer_id", reviewer.ID,
		"decision", decision,
	)
	return report, nil
}

// ListPending returns a page of reports whose appeal awaits a decision.
func (s *AppealService) ListPending(ctx context.Context, page, limit int) (*models.ReportPage, error) {
	reports, total, err := s.db.ListReports(ctx, models.ReportFilter{AppealPending: true, Page: page, Limit: limit})
	if err != nil {
		return nil, err
	}
	page, limit = database.NormalizePage(page, limit)
	return &models.ReportPage{Data: reports, Pagination: models.NewPagination(page, limit, total)}, nil
}
