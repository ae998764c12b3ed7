// Package scheduler runs the periodic debt accrual job.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/locks"
	"github.com/aawaaz/citizen-report-server/internal/policy"
	"github.com/aawaaz/citizen-report-server/internal/services"
)

const lockTTL = 10 * time.Minute

// Accruer applies late fees to every overdue debt.
type Accruer interface {
	AccrueDue(ctx context.Context, now time.Time) (*services.AccrualResult, error)
}

// Scheduler triggers debt accrual on a cron schedule. Runs on different
// instances are serialized through a per-period lock.
type Scheduler struct {
	cron       *cron.Cron
	debts      Accruer
	locker     locks.Locker
	instanceID string
	logger     *zap.SugaredLogger
	now        func() time.Time
}

// New registers the accrual job on schedule (standard five-field cron, UTC).
func New(schedule string, debts Accruer, locker locks.Locker, logger *zap.SugaredLogger) (*Scheduler, error) {
	instanceID, _ := os.Hostname()
	if instanceID == "" {
		instanceID = "instance"
	}

	s := &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		debts:      debts,
		locker:     locker,
		instanceID: instanceID + "-" + uuid.NewString()[:8],
		logger:     logger,
		now:        time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("register accrual job %q: %w", schedule, err)
	}
	return s, nil
}

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Start begins the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Accrual scheduler started")
}

// Stop waits for a running job, then stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Accrual scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, _, err := s.RunOnce(ctx); err != nil {
		s.logger.Errorw("Debt accrual failed", "error", err)
	}
}

// RunOnce accrues every overdue debt unless another run holds the lock for
// the current period. The flag reports whether this call did the work.
func (s *Scheduler) RunOnce(ctx context.Context) (*services.AccrualResult, bool, error) {
	now := s.now()
	name := "debt-accrual:" + policy.PeriodKey(now)

	acquired, err := s.locker.TryAcquire(ctx, name, s.instanceID, lockTTL)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		s.logger.Debugw("Debt accrual already running elsewhere, skipping", "lock", name)
		return nil, false, nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), name, s.instanceID); err != nil {
			s.logger.Warnw("Failed to release accrual lock", "lock", name, "error", err)
		}
	}()

	s.logger.Infow("Running debt accrual", "instance", s.instanceID, "period", policy.PeriodKey(now))
	res, err := s.debts.AccrueDue(ctx, now)
	if err != nil {
		return res, true, err
	}
	return res, true, nil
}
