package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/aawaaz/citizen-report-server/internal/services"
)

// RewardsHandler exposes the caller's ledger and debts
type RewardsHandler struct {
	ledger *services.LedgerService
	debts  *services.DebtService
	logger *zap.SugaredLogger
}

// NewRewardsHandler creates a new rewards handler
func NewRewardsHandler(ledger *services.LedgerService, debts *services.DebtService, logger *zap.SugaredLogger) *RewardsHandler {
	return &RewardsHandler{ledger: ledger, debts: debts, logger: logger}
}

// Balance handles GET /api/v1/rewards/balance
func (h *RewardsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.ledger.Balance(r.Context(), actorFrom(r).ID)
	if err != nil {
		respondServiceError(w, h.logger, "get balance", err)
		return
	}

	respondJSON(w, http.StatusOK, balance)
}

// Transactions handles GET /api/v1/rewards/transactions
func (h *RewardsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	result, err := h.ledger.Page(r.Context(), actorFrom(r).ID, page, limit)
	if err != nil {
		respondServiceError(w, h.logger, "list transactions", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Withdraw handles POST /api/v1/rewards/withdraw
func (h *RewardsHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req models.WithdrawRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	tx, err := h.ledger.Withdraw(r.Context(), actorFrom(r).ID, req.Amount)
	if err != nil {
		respondServiceError(w, h.logger, "withdraw", err)
		return
	}

	respondJSON(w, http.StatusCreated, tx)
}

// Debts handles GET /api/v1/rewards/debts
func (h *RewardsHandler) Debts(w http.ResponseWriter, r *http.Request) {
	debts, err := h.debts.ListForUser(r.Context(), actorFrom(r).ID)
	if err != nil {
		respondServiceError(w, h.logger, "list debts", err)
		return
	}
	if debts == nil {
		debts = []models.OutstandingDebt{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": debts,
	})
}

// PayDebt handles POST /api/v1/rewards/pay-debt
func (h *RewardsHandler) PayDebt(w http.ResponseWriter, r *http.Request) {
	var req models.PayDebtRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	debt, err := h.debts.Pay(r.Context(), req.DebtID, actorFrom(r).ID, req.Amount, req.Method)
	if err != nil {
		respondServiceError(w, h.logger, "pay debt", err)
		return
	}

	respondJSON(w, http.StatusOK, debt)
}
