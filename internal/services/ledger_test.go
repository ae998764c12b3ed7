package services_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/aawaaz/citizen-report-server/internal/services"
)

func (e *env) record(t *testing.T, userID string, amount int64, reportID *string) error {
	t.Helper()
	typ := models.TxReward
	if amount < 0 {
		typ = models.TxPenalty
	}
	return e.db.WithTx(ctx, func(tx *database.Tx) error {
		return e.ledger.Record(ctx, tx.Queries, &models.SettlementTransaction{
			UserID:          userID,
			Amount:          amount,
			Type:            typ,
			Source:          models.SourceCitizenReport,
			RelatedReportID: reportID,
			CreatedAt:       e.clock.Now(),
		})
	})
}

func TestLedgerRecord_Duplicate(t *testing.T) {
	e := newEnv(t)
	report := "report-1"

	require.NoError(t, e.record(t, "citizen-1", 500, &report))

	err := e.record(t, "citizen-1", 500, &report)
	assert.ErrorIs(t, err, services.ErrDuplicate)
	assert.ErrorIs(t, err, services.ErrConflict)

	// other types for the same report are distinct settlement events
	require.NoError(t, e.record(t, "citizen-1", -100, &report))

	bal, err := e.ledger.BalanceFor(ctx, "citizen-1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), bal)
}

func TestLedgerRecord_SignMustMatchType(t *testing.T) {
	e := newEnv(t)

	err := e.db.WithTx(ctx, func(tx *database.Tx) error {
		return e.ledger.Record(ctx, tx.Queries, &models.SettlementTransaction{
			UserID: "citizen-1", Amount: 100, Type: models.TxPenalty, Source: models.SourceSystem,
		})
	})
	assert.ErrorIs(t, err, services.ErrValidation)

	err = e.db.WithTx(ctx, func(tx *database.Tx) error {
		return e.ledger.Record(ctx, tx.Queries, &models.SettlementTransaction{
			UserID: "citizen-1", Amount: 0, Type: models.TxReward, Source: models.SourceSystem,
		})
	})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestLedgerBalance_IgnoresInsertionOrder(t *testing.T) {
	e := newEnv(t)
	run := 0

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("balance is the sum of completed amounts in any order", prop.ForAll(
		func(magnitudes []int64) bool {
			run++
			forward := fmt.Sprintf("forward-%d", run)
			backward := fmt.Sprintf("backward-%d", run)

			amounts := make([]int64, len(magnitudes))
			var want int64
			for i, m := range magnitudes {
				amounts[i] = m
				if i%3 == 0 {
					amounts[i] = -m
				}
				want += amounts[i]
			}

			for _, a := range amounts {
				if e.record(t, forward, a, nil) != nil {
					return false
				}
			}
			for i := len(amounts) - 1; i >= 0; i-- {
				if e.record(t, backward, amounts[i], nil) != nil {
					return false
				}
			}

			f, err := e.ledger.BalanceFor(ctx, forward)
			if err != nil {
				return false
			}
			b, err := e.ledger.BalanceFor(ctx, backward)
			if err != nil {
				return false
			}
			return f == want && b == want
		},
		gen.SliceOf(gen.Int64Range(1, 100000)),
	))

	properties.TestingRun(t)
}

func TestLedgerHistory(t *testing.T) {
	e := newEnv(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, e.record(t, "citizen-1", int64(i*100), nil))
	}
	require.NoError(t, e.record(t, "citizen-2", 999, nil))

	var amounts []int64
	pages := 0
	for page, err := range e.ledger.History(ctx, "citizen-1", 2) {
		require.NoError(t, err)
		pages++
		for _, tx := range page.Data {
			amounts = append(amounts, tx.Amount)
		}
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []int64{500, 400, 300, 200, 100}, amounts, "newest first")

	// a fresh range starts over and may stop early
	for page, err := range e.ledger.History(ctx, "citizen-1", 2) {
		require.NoError(t, err)
		assert.Equal(t, 1, page.Pagination.Page)
		break
	}

	empty := 0
	for range e.ledger.History(ctx, "nobody", 2) {
		empty++
	}
	assert.Zero(t, empty)
}

func TestLedgerWithdraw(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.record(t, "citizen-1", 800, nil))

	_, err := e.ledger.Withdraw(ctx, "citizen-1", 0)
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = e.ledger.Withdraw(ctx, "citizen-1", 801)
	assert.ErrorIs(t, err, services.ErrValidation)

	tx, err := e.ledger.Withdraw(ctx, "citizen-1", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(-300), tx.Amount)
	assert.Equal(t, models.SourceSystem, tx.Source)
	assert.Nil(t, tx.RelatedReportID)

	// withdrawals carry no report so they never collide with each other
	_, err = e.ledger.Withdraw(ctx, "citizen-1", 500)
	require.NoError(t, err)

	bal, err := e.ledger.Balance(ctx, "citizen-1")
	require.NoError(t, err)
	assert.Zero(t, bal.CurrentBalance)
}

func TestLedgerBalance_IncludesOpenDebt(t *testing.T) {
	e := newEnv(t)
	r := e.submit(t, "citizen-1")
	e.reject(t, r.ID, 1000)

	bal, err := e.ledger.Balance(ctx, "citizen-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), bal.CurrentBalance)
	assert.Equal(t, int64(1000), bal.OutstandingDue)
}
