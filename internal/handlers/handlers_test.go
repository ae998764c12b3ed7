package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/handlers"
	"github.com/aawaaz/citizen-report-server/internal/locks"
	"github.com/aawaaz/citizen-report-server/internal/logging"
	"github.com/aawaaz/citizen-report-server/internal/middleware"
	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/aawaaz/citizen-report-server/internal/policy"
	"github.com/aawaaz/citizen-report-server/internal/scheduler"
	"github.com/aawaaz/citizen-report-server/internal/services"
	"github.com/aawaaz/citizen-report-server/internal/testhelpers"
)

const secret = "handler-test-secret"

var (
	alice   = models.Actor{ID: "citizen-alice", Role: models.RoleCitizen}
	bob     = models.Actor{ID: "citizen-bob", Role: models.RoleCitizen}
	officer = models.Actor{ID: "officer-7", Role: models.RolePolice}
	admin   = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

type server struct {
	handler http.Handler
	worker  *services.IntegrityWorker
}

func newServer(t *testing.T) *server {
	t.Helper()

	db := testhelpers.NewDB(t)
	log := logging.Nop()

	activity := services.NewActivityLogService(db, log)
	reports := services.NewReportService(db, activity, log)
	ledger := services.NewLedgerService(db, log)
	debts := services.NewDebtService(db, ledger, policy.LateFees{WeeklyBPS: 200, MaxWeeks: 52}, 14*24*time.Hour, log)
	reviews := services.NewReviewService(db, ledger, debts, activity, policy.NewPricing(500, 1000), log)
	appeals := services.NewAppealService(db, ledger, debts, activity, log)
	merkle := services.NewMerkleService(log)
	worker := services.NewIntegrityWorker(merkle, db, log)

	accrual, err := scheduler.New("@daily", debts, locks.NewLocalLocker(), log)
	require.NoError(t, err)

	router := handlers.NewRouter(handlers.RouterOptions{
		JWTSecret:      secret,
		AllowedOrigins: []string{"http://localhost:5173"},
		Limiter:        middleware.NewMemoryLimiter(10000),
		Logger:         zap.NewNop(),
	}, handlers.Handlers{
		Health:    handlers.NewHealthHandler(db, nil, log),
		Reports:   handlers.NewReportHandler(reports, appeals, activity, log),
		Police:    handlers.NewPoliceHandler(reports, reviews, appeals, log),
		Rewards:   handlers.NewRewardsHandler(ledger, debts, log),
		Admin:     handlers.NewAdminHandler(reports, accrual, log),
		Integrity: handlers.NewIntegrityHandler(merkle, worker, log),
	})

	return &server{handler: router, worker: worker}
}

func (s *server) do(t *testing.T, actor *models.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		tok, err := middleware.SignToken(secret, *actor, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type reportResp struct {
	ID                      string               `json:"id"`
	CitizenID               string               `json:"citizenId"`
	VehiclePlate            string               `json:"vehiclePlate"`
	Status                  models.ReportStatus  `json:"status"`
	EffectiveStatus         models.ReportStatus  `json:"effectiveStatus"`
	PenaltyAmount           *int64               `json:"penaltyAmount"`
	RewardAmount            *int64               `json:"rewardAmount"`
	AppealSubmitted         bool                 `json:"appealSubmitted"`
	AppealStatus            *models.ReportStatus `json:"appealStatus"`
	AdditionalPenaltyAmount *int64               `json:"additionalPenaltyAmount"`
}

type errorResp struct {
	Error string `json:"error"`
}

func validSubmission() map[string]any {
	return map[string]any{
		"vehiclePlate":  "dha-1234",
		"violationType": "RED_LIGHT",
		"description":   "ran the red light at Farmgate",
		"evidenceUrls":  []string{"https://cdn.example/evidence/1.jpg"},
		"locationData": map[string]any{
			"latitude": 23.75, "longitude": 90.39, "address": "Farmgate", "city": "Dhaka",
		},
	}
}

func (s *server) submit(t *testing.T, actor models.Actor) reportResp {
	t.Helper()
	rec := s.do(t, &actor, http.MethodPost, "/citizen-reports", validSubmission())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[reportResp](t, rec)
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, nil, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[models.HealthStatus](t, rec)
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, "connected", status.Database)
	assert.Empty(t, status.Redis)
}

func TestAuthAndRoles(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		actor  *models.Actor
		method string
		path   string
		want   int
	}{
		{"no token", nil, http.MethodGet, "/rewards/balance", http.StatusUnauthorized},
		{"citizen on police queue", &alice, http.MethodGet, "/police/reports", http.StatusForbidden},
		{"police on admin analytics", &officer, http.MethodGet, "/admin/analytics/statuses", http.StatusForbidden},
		{"police cannot submit", &officer, http.MethodPost, "/citizen-reports", http.StatusForbidden},
		{"police queue", &officer, http.MethodGet, "/police/reports", http.StatusOK},
		{"admin on police queue", &admin, http.MethodGet, "/police/reports", http.StatusOK},
		{"admin analytics", &admin, http.MethodGet, "/admin/analytics/statuses", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.actor, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSubmitReport(t *testing.T) {
	s := newServer(t)

	r := s.submit(t, alice)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, alice.ID, r.CitizenID)
	assert.Equal(t, "DHA-1234", r.VehiclePlate)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.False(t, r.AppealSubmitted)

	t.Run("missing evidence", func(t *testing.T) {
		body := validSubmission()
		delete(body, "evidenceUrls")
		rec := s.do(t, &alice, http.MethodPost, "/citizen-reports", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[errorResp](t, rec).Error, "evidenceUrls")
	})

	t.Run("unknown violation type", func(t *testing.T) {
		body := validSubmission()
		body["violationType"] = "JAYWALKING"
		rec := s.do(t, &alice, http.MethodPost, "/citizen-reports", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/citizen-reports", strings.NewReader("{"))
		tok, err := middleware.SignToken(secret, alice, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestReportVisibility(t *testing.T) {
	s := newServer(t)
	r := s.submit(t, alice)

	assert.Equal(t, http.StatusOK, s.do(t, &alice, http.MethodGet, "/citizen-reports/"+r.ID, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, &officer, http.MethodGet, "/citizen-reports/"+r.ID, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, &bob, http.MethodGet, "/citizen-reports/"+r.ID, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, &bob, http.MethodGet, "/citizen-reports/"+r.ID+"/activity", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, &alice, http.MethodGet, "/citizen-reports/missing", nil).Code)

	mine := decode[models.ReportPage](t, s.do(t, &alice, http.MethodGet, "/citizen-reports/my-reports", nil))
	assert.Len(t, mine.Data, 1)
	theirs := decode[models.ReportPage](t, s.do(t, &bob, http.MethodGet, "/citizen-reports/my-reports", nil))
	assert.Empty(t, theirs.Data)

	rec := s.do(t, &alice, http.MethodGet, "/citizen-reports/my-reports?dateFrom=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteReport(t *testing.T) {
	s := newServer(t)
	r := s.submit(t, alice)

	assert.Equal(t, http.StatusForbidden, s.do(t, &bob, http.MethodDelete, "/citizen-reports/"+r.ID, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, &alice, http.MethodDelete, "/citizen-reports/"+r.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, &alice, http.MethodGet, "/citizen-reports/"+r.ID, nil).Code)

	// reviewed reports stay
	r = s.submit(t, alice)
	rec := s.do(t, &officer, http.MethodPost, "/police/review-report/"+r.ID, map[string]any{"status": "APPROVED"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusConflict, s.do(t, &alice, http.MethodDelete, "/citizen-reports/"+r.ID, nil).Code)
}

func TestReview(t *testing.T) {
	s := newServer(t)
	r := s.submit(t, alice)

	rec := s.do(t, &officer, http.MethodPost, "/police/review-report/"+r.ID, map[string]any{"status": "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, &officer, http.MethodPost, "/police/review-report/"+r.ID, map[string]any{
		"status": "APPROVED", "reviewNotes": "clear footage", "amount": 750,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[reportResp](t, rec)
	assert.Equal(t, models.StatusApproved, got.Status)
	require.NotNil(t, got.RewardAmount)
	assert.EqualValues(t, 750, *got.RewardAmount)

	// terminal
	rec = s.do(t, &officer, http.MethodPost, "/police/review-report/"+r.ID, map[string]any{"status": "REJECTED"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	bal := decode[models.Balance](t, s.do(t, &alice, http.MethodGet, "/rewards/balance", nil))
	assert.EqualValues(t, 750, bal.CurrentBalance)

	txs := decode[models.TransactionPage](t, s.do(t, &alice, http.MethodGet, "/rewards/transactions", nil))
	require.Len(t, txs.Data, 1)
	assert.Equal(t, models.TxReward, txs.Data[0].Type)

	activity := decode[struct {
		Data []models.ReportActivity `json:"data"`
	}](t, s.do(t, &alice, http.MethodGet, "/citizen-reports/"+r.ID+"/activity", nil))
	assert.Len(t, activity.Data, 2)
}

func TestRejectedAppealOverHTTP(t *testing.T) {
	s := newServer(t)
	r := s.submit(t, alice)

	rec := s.do(t, &officer, http.MethodPost, "/police/review-report/"+r.ID, map[string]any{
		"status": "REJECTED", "reviewNotes": "plate not visible", "amount": 1000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, &bob, http.MethodPost, "/citizen-reports/"+r.ID+"/appeal", map[string]any{"reason": "not mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, &alice, http.MethodPost, "/citizen-reports/"+r.ID+"/appeal", map[string]any{"reason": "plate is visible in frame 3"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[reportResp](t, rec).AppealSubmitted)

	rec = s.do(t, &alice, http.MethodPost, "/citizen-reports/"+r.ID+"/appeal", map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	queue := decode[models.ReportPage](t, s.do(t, &officer, http.MethodGet, "/police/appeals", nil))
	require.Len(t, queue.Data, 1)
	assert.Equal(t, r.ID, queue.Data[0].ID)

	rec = s.do(t, &officer, http.MethodPost, "/police/resolve-appeal/"+r.ID, map[string]any{
		"status": "REJECTED", "appealNotes": "frame 3 is blurred",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[reportResp](t, rec)
	assert.Equal(t, models.StatusRejected, got.EffectiveStatus)
	require.NotNil(t, got.AdditionalPenaltyAmount)
	assert.EqualValues(t, 15, *got.AdditionalPenaltyAmount)

	bal := decode[models.Balance](t, s.do(t, &alice, http.MethodGet, "/rewards/balance", nil))
	assert.EqualValues(t, -1015, bal.CurrentBalance)
	assert.EqualValues(t, 1015, bal.OutstandingDue)

	debts := decode[struct {
		Data []models.OutstandingDebt `json:"data"`
	}](t, s.do(t, &alice, http.MethodGet, "/rewards/debts", nil))
	require.Len(t, debts.Data, 2)

	// pay the 15 surcharge in full
	var surcharge models.OutstandingDebt
	for _, d := range debts.Data {
		if d.OriginalAmount == 15 {
			surcharge = d
		}
	}
	require.NotEmpty(t, surcharge.ID)

	rec = s.do(t, &bob, http.MethodPost, "/rewards/pay-debt", map[string]any{"debtId": surcharge.ID, "amount": 15, "method": "CARD"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, &alice, http.MethodPost, "/rewards/pay-debt", map[string]any{"debtId": surcharge.ID, "amount": 15, "method": "CHEQUE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, &alice, http.MethodPost, "/rewards/pay-debt", map[string]any{"debtId": surcharge.ID, "amount": 15, "method": "BKASH"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[models.OutstandingDebt](t, rec)
	assert.Equal(t, models.DebtPaid, paid.Status)
	assert.NotEmpty(t, paid.PaymentReference)

	// the payment is credited back as a FINE_PAYMENT entry
	bal = decode[models.Balance](t, s.do(t, &alice, http.MethodGet, "/rewards/balance", nil))
	assert.EqualValues(t, -1000, bal.CurrentBalance)
	assert.EqualValues(t, 1000, bal.OutstandingDue)
}

func TestApprovedAppealOverHTTP(t *testing.T) {
	s := newServer(t)
	r := s.submit(t, alice)

	require.Equal(t, http.StatusOK, s.do(t, &officer, http.MethodPost, "/police/review-report/"+r.ID,
		map[string]any{"status": "REJECTED", "amount": 1000}).Code)
	require.Equal(t, http.StatusOK, s.do(t, &alice, http.MethodPost, "/citizen-reports/"+r.ID+"/appeal",
		map[string]any{"reason": "wrong vehicle"}).Code)

	rec := s.do(t, &admin, http.MethodPost, "/police/resolve-appeal/"+r.ID, map[string]any{"status": "APPROVED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[reportResp](t, rec)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Equal(t, models.StatusApproved, got.EffectiveStatus)
	require.NotNil(t, got.AppealStatus)
	assert.Equal(t, models.StatusApproved, *got.AppealStatus)

	bal := decode[models.Balance](t, s.do(t, &alice, http.MethodGet, "/rewards/balance", nil))
	assert.EqualValues(t, 0, bal.CurrentBalance)
	assert.EqualValues(t, 0, bal.OutstandingDue)

	// already resolved
	rec = s.do(t, &admin, http.MethodPost, "/police/resolve-appeal/"+r.ID, map[string]any{"status": "REJECTED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWithdraw(t *testing.T) {
	s := newServer(t)
	r := s.submit(t, alice)
	require.Equal(t, http.StatusOK, s.do(t, &officer, http.MethodPost, "/police/review-report/"+r.ID,
		map[string]any{"status": "APPROVED", "amount": 500}).Code)

	rec := s.do(t, &alice, http.MethodPost, "/rewards/withdraw", map[string]any{"amount": 501})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, &alice, http.MethodPost, "/rewards/withdraw", map[string]any{"amount": 200})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decode[models.SettlementTransaction](t, rec)
	assert.EqualValues(t, -200, tx.Amount)
	assert.Equal(t, models.TxDeduction, tx.Type)

	bal := decode[models.Balance](t, s.do(t, &alice, http.MethodGet, "/rewards/balance", nil))
	assert.EqualValues(t, 300, bal.CurrentBalance)

	rec = s.do(t, &officer, http.MethodPost, "/rewards/withdraw", map[string]any{"amount": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newServer(t)
	r := s.submit(t, alice)
	s.submit(t, bob)
	require.Equal(t, http.StatusOK, s.do(t, &officer, http.MethodPost, "/police/review-report/"+r.ID,
		map[string]any{"status": "REJECTED", "amount": 1000}).Code)

	t.Run("accrue", func(t *testing.T) {
		rec := s.do(t, &admin, http.MethodPost, "/admin/debts/accrue", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		res := decode[services.AccrualResult](t, rec)
		assert.NotEmpty(t, res.PeriodKey)
		// nothing is overdue yet
		assert.Zero(t, res.Accrued)
	})

	t.Run("analytics", func(t *testing.T) {
		statuses := decode[[]models.CategoryDistribution](t, s.do(t, &admin, http.MethodGet, "/admin/analytics/statuses", nil))
		counts := map[string]int{}
		for _, c := range statuses {
			counts[c.Category] = c.Count
		}
		assert.Equal(t, 1, counts["PENDING"])
		assert.Equal(t, 1, counts["REJECTED"])

		types := decode[[]models.CategoryDistribution](t, s.do(t, &admin, http.MethodGet, "/admin/analytics/violation-types", nil))
		require.Len(t, types, 1)
		assert.Equal(t, "RED_LIGHT", types[0].Category)
		assert.Equal(t, 2, types[0].Count)

		assert.Equal(t, http.StatusOK, s.do(t, &admin, http.MethodGet, "/admin/analytics/trends?days=7", nil).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, &admin, http.MethodGet, "/admin/analytics/trends?days=0", nil).Code)
		assert.Equal(t, http.StatusBadRequest, s.do(t, &admin, http.MethodGet, "/admin/analytics/trends?days=x", nil).Code)
	})
}

func TestLedgerIntegrityEndpoints(t *testing.T) {
	s := newServer(t)
	for range 3 {
		r := s.submit(t, alice)
		require.Equal(t, http.StatusOK, s.do(t, &officer, http.MethodPost, "/police/review-report/"+r.ID,
			map[string]any{"status": "APPROVED"}).Code)
	}
	require.NoError(t, s.worker.Rebuild(t.Context()))

	rec := s.do(t, &admin, http.MethodGet, "/admin/ledger/root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[map[string]any](t, rec)
	assert.EqualValues(t, 3, root["leaf_count"])
	assert.Equal(t, root["root"], rec.Header().Get("X-Merkle-Root"))

	rec = s.do(t, &admin, http.MethodGet, "/admin/ledger/proof/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	proof := decode[models.MerkleProof](t, rec)
	assert.True(t, proof.Verified)

	assert.Equal(t, http.StatusNotFound, s.do(t, &admin, http.MethodGet, "/admin/ledger/proof/3", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, &admin, http.MethodGet, "/admin/ledger/proof/abc", nil).Code)

	type verified struct {
		Verified bool `json:"verified"`
	}
	rec = s.do(t, &admin, http.MethodPost, "/admin/ledger/verify", proof)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[verified](t, rec).Verified)

	other := decode[models.MerkleProof](t, s.do(t, &admin, http.MethodGet, "/admin/ledger/proof/0", nil))
	proof.LeafHash = other.LeafHash
	rec = s.do(t, &admin, http.MethodPost, "/admin/ledger/verify", proof)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[verified](t, rec).Verified)

	check := decode[services.LedgerCheck](t, s.do(t, &admin, http.MethodGet, "/admin/ledger/check", nil))
	assert.True(t, check.Consistent)
	assert.Equal(t, 3, check.CurrentSize)
}
