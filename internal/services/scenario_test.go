package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aawaaz/citizen-report-server/internal/models"
)

func TestScenario_RejectedAppealCosts1015(t *testing.T) {
	e := newEnv(t)

	report, err := e.reports.Create(ctx, "citizen-1", models.ReportSubmission{
		VehiclePlate:  "DHA-1234",
		ViolationType: models.ViolationRedLight,
		EvidenceURLs:  []string{"https://cdn.example/evidence/dha-1234.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, report.Status)

	penalty := int64(1000)
	report, err = e.reviews.Review(ctx, report.ID, officer, models.StatusRejected, "no violation visible", &penalty)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, report.Status)
	assert.Equal(t, int64(1000), *report.PenaltyAmount)

	txs, err := e.ledger.ForReport(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-1000), txs[0].Amount)

	report, err = e.appeals.FileAppeal(ctx, report.ID, "citizen-1", "wrong plate read")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, report.Appeal.Status())

	report, err = e.appeals.ResolveAppeal(ctx, report.ID, officer, models.StatusRejected, "plate confirmed")
	require.NoError(t, err)
	assert.Equal(t, int64(15), *report.Appeal.Resolution.AdditionalPenalty)

	txs, err = e.ledger.ForReport(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-15), txs[1].Amount)

	var contribution int64
	for _, tx := range txs {
		contribution += tx.Amount
	}
	assert.Equal(t, int64(-1015), contribution)

	stored, err := e.reports.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-1015), stored.SettlementContribution())

	bal, err := e.ledger.BalanceFor(ctx, "citizen-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-1015), bal)
}
