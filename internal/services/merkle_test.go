package services_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aawaaz/citizen-report-server/internal/database"
	"github.com/aawaaz/citizen-report-server/internal/logging"
	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/aawaaz/citizen-report-server/internal/services"
)

func TestMerkle_EmptyTree(t *testing.T) {
	m := services.NewMerkleService(logging.Nop())
	m.BuildFromHashes(nil)
	assert.Empty(t, m.GetRoot())

	_, err := m.GetProof(0)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestMerkle_EveryProofVerifies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("proofs of every leaf fold to the root", prop.ForAll(
		func(n int) bool {
			hashes := make([]string, n)
			for i := range hashes {
				hashes[i] = fmt.Sprintf("%064x", i+1)
			}
			m := services.NewMerkleService(logging.Nop())
			m.BuildFromHashes(hashes)

			for i := 0; i < n; i++ {
				p, err := m.GetProof(i)
				if err != nil || !p.Verified {
					return false
				}
				if !services.VerifyProof(p.LeafHash, p.Proof, m.GetRoot()) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

func TestMerkle_TamperedProofFails(t *testing.T) {
	m := services.NewMerkleService(logging.Nop())
	m.BuildFromHashes([]string{"a", "b", "c", "d", "e"})

	p, err := m.GetProof(2)
	require.NoError(t, err)
	require.True(t, p.Verified)

	assert.False(t, services.VerifyProof("x", p.Proof, p.Root))
	p.Proof[0].Position = "left"
	assert.False(t, services.VerifyProof(p.LeafHash, p.Proof, p.Root))
	assert.False(t, services.VerifyProof(p.LeafHash, []models.ProofStep{{Hash: "a", Position: "up"}}, p.Root))
}

func TestLeafHash_CoversSettledFields(t *testing.T) {
	report := "r1"
	base := models.SettlementTransaction{
		ID: "t1", UserID: "u1", Amount: -1000, Type: models.TxPenalty,
		Source: models.SourceCitizenReport, RelatedReportID: &report, Status: models.TxStatusCompleted,
	}
	changed := base
	changed.Amount = -10

	assert.Equal(t, services.LeafHash(base), services.LeafHash(base))
	assert.NotEqual(t, services.LeafHash(base), services.LeafHash(changed))
}

func TestIntegrityWorker_DetectsEdits(t *testing.T) {
	e := newEnv(t)
	worker := services.NewIntegrityWorker(services.NewMerkleService(logging.Nop()), e.db, logging.Nop())

	r := e.submit(t, "citizen-1")
	e.reject(t, r.ID, 1000)
	require.NoError(t, worker.Rebuild(ctx))

	check, err := worker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, 1, check.PublishedSize)

	// appends keep the published prefix intact
	_, err = e.appeals.FileAppeal(ctx, r.ID, "citizen-1", "wrong plate read")
	require.NoError(t, err)
	_, err = e.appeals.ResolveAppeal(ctx, r.ID, officer, models.StatusRejected, "")
	require.NoError(t, err)

	check, err = worker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, 2, check.CurrentSize)
	assert.NotEqual(t, check.PublishedRoot, check.CurrentRoot)

	_, err = e.db.Conn().ExecContext(ctx, `UPDATE settlement_transactions SET amount = -1 WHERE type = 'PENALTY'`)
	require.NoError(t, err)

	check, err = worker.Check(ctx)
	require.NoError(t, err)
	assert.False(t, check.Consistent)
}

func TestIntegrityWorker_LateCommitWithEarlierTimestamp(t *testing.T) {
	e := newEnv(t)
	worker := services.NewIntegrityWorker(services.NewMerkleService(logging.Nop()), e.db, logging.Nop())

	require.NoError(t, e.record(t, "citizen-1", 500, nil))
	require.NoError(t, e.record(t, "citizen-2", 700, nil))
	require.NoError(t, worker.Rebuild(ctx))

	// stamped before the published rows but committed after the build
	err := e.db.WithTx(ctx, func(tx *database.Tx) error {
		return e.ledger.Record(ctx, tx.Queries, &models.SettlementTransaction{
			UserID:    "citizen-3",
			Amount:    300,
			Type:      models.TxReward,
			Source:    models.SourceCitizenReport,
			CreatedAt: e.clock.Now().Add(-time.Hour),
		})
	})
	require.NoError(t, err)

	check, err := worker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, 2, check.PublishedSize)
	assert.Equal(t, 3, check.CurrentSize)

	_, err = e.db.Conn().ExecContext(ctx, `DELETE FROM settlement_transactions WHERE user_id = 'citizen-2'`)
	require.NoError(t, err)

	check, err = worker.Check(ctx)
	require.NoError(t, err)
	assert.False(t, check.Consistent, "a published row went missing")
}
