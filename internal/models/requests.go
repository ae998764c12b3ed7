package models

import "time"

// ReportSubmission is the request body for POST /citizen-reports
type ReportSubmission struct {
	VehiclePlate  string        `json:"vehiclePlate" validate:"required,max=32"`
	ViolationType ViolationType `json:"violationType" validate:"required"`
	Description   string        `json:"description,omitempty" validate:"max=2000"`
	EvidenceURLs  []string      `json:"evidenceUrls" validate:"required,min=1,dive,url"`
	LocationData  *Location     `json:"locationData,omitempty" validate:"omitempty"`
}

// ReviewRequest is the request body for POST /police/review-report/{id}
type ReviewRequest struct {
	Status      ReportStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	ReviewNotes string       `json:"reviewNotes" validate:"max=2000"`
	Amount      *int64       `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

// AppealRequest is the request body for POST /citizen-reports/{id}/appeal
type AppealRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// AppealResolutionRequest is the request body for POST /police/resolve-appeal/{id}
type AppealResolutionRequest struct {
	Status      ReportStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	AppealNotes string       `json:"appealNotes" validate:"max=2000"`
}

// WithdrawRequest is the request body for POST /rewards/withdraw
type WithdrawRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

// PayDebtRequest is the request body for POST /rewards/pay-debt
type PayDebtRequest struct {
	DebtID string `json:"debtId" validate:"required"`
	Amount int64  `json:"amount" validate:"gt=0"`
	Method string `json:"method" validate:"required,oneof=CARD BKASH NAGAD ROCKET BANK_TRANSFER CASH"`
}

// ReportFilter narrows report listings.
type ReportFilter struct {
	CitizenID     string
	Search        string
	Status        ReportStatus
	ViolationType ViolationType
	AppealPending bool
	DateFrom      *time.Time
	DateTo        *time.Time
	Page          int
	Limit         int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes page counts for a listing.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// ReportPage is one page of reports.
type ReportPage struct {
	Data       []CitizenReport `json:"data"`
	Pagination Pagination      `json:"pagination"`
}

// TransactionPage is one page of ledger history.
type TransactionPage struct {
	Data       []SettlementTransaction `json:"data"`
	Pagination Pagination              `json:"pagination"`
}

// Balance is the GET /rewards/balance response.
type Balance struct {
	UserID         string `json:"userId"`
	CurrentBalance int64  `json:"currentBalance"`
	OutstandingDue int64  `json:"outstandingDebt"`
}
