// Package models defines the data structures used across the application.
// These map to the reports, settlement_transactions and debts tables.
package models

import (
	"time"
)

// ReportStatus is the adjudication state of a citizen report.
type ReportStatus string

const (
	StatusPending  ReportStatus = "PENDING"
	StatusApproved ReportStatus = "APPROVED"
	StatusRejected ReportStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsDecision reports whether s is a terminal review or appeal outcome.
func (s ReportStatus) IsDecision() bool {
	return s == StatusApproved || s == StatusRejected
}

// ViolationType enumerates the offences a citizen can report.
type ViolationType string

const (
	ViolationSpeeding        ViolationType = "SPEEDING"
	ViolationRedLight        ViolationType = "RED_LIGHT"
	ViolationWrongWay        ViolationType = "WRONG_WAY"
	ViolationNoHelmet        ViolationType = "NO_HELMET"
	ViolationIllegalParking  ViolationType = "ILLEGAL_PARKING"
	ViolationNoSeatbelt      ViolationType = "NO_SEATBELT"
	ViolationMobilePhone     ViolationType = "MOBILE_PHONE_USE"
	ViolationRecklessDriving ViolationType = "RECKLESS_DRIVING"
	ViolationOverloading     ViolationType = "OVERLOADING"
	ViolationNoLicense       ViolationType = "NO_LICENSE"
	ViolationOther           ViolationType = "OTHER"
)

// ViolationTypes lists every accepted violation type.
var ViolationTypes = []ViolationType{
	ViolationSpeeding, ViolationRedLight, ViolationWrongWay, ViolationNoHelmet,
	ViolationIllegalParking, ViolationNoSeatbelt, ViolationMobilePhone,
	ViolationRecklessDriving, ViolationOverloading, ViolationNoLicense, ViolationOther,
}

// Valid reports whether v is a known violation type.
func (v ViolationType) Valid() bool {
	for _, t := range ViolationTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Location is an optional geocoded place attached to a report.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Address   string  `json:"address" validate:"required"`
	City      string  `json:"city,omitempty"`
	District  string  `json:"district,omitempty"`
	Division  string  `json:"division,omitempty"`
}

// Review holds the police verdict. Either all of it is present or none.
type Review struct {
	ReviewerID string    `json:"reviewerId"`
	Notes      string    `json:"reviewNotes"`
	ReviewedAt time.Time `json:"reviewedAt"`
}

// Appeal is the citizen's single contest of a rejected report.
// A nil *Appeal on the report means no appeal was filed; a nil Resolution
// means the appeal is awaiting review.
type Appeal struct {
	Reason     string            `json:"reason"`
	FiledAt    time.Time         `json:"filedAt"`
	Resolution *AppealResolution `json:"resolution,omitempty"`
}

// AppealResolution is the police decision on an appeal.
type AppealResolution struct {
	Decision          ReportStatus `json:"decision"`
	ReviewerID        string       `json:"reviewerId"`
	Notes             string       `json:"notes"`
	AdditionalPenalty *int64       `json:"additionalPenaltyAmount,omitempty"`
	ReviewedAt        time.Time    `json:"reviewedAt"`
}

// Status returns PENDING until the appeal has been resolved.
func (a *Appeal) Status() ReportStatus {
	if a.Resolution == nil {
		return StatusPending
	}
	return a.Resolution.Decision
}

// CitizenReport is a citizen-submitted allegation of a traffic violation.
type CitizenReport struct {
	ID            string        `json:"id"`
	CitizenID     string        `json:"citizenId"`
	VehiclePlate  string        `json:"vehiclePlate"`
	ViolationType ViolationType `json:"violationType"`
	Description   string        `json:"description,omitempty"`
	EvidenceURLs  []string      `json:"evidenceUrls"`
	Location      *Location     `json:"location,omitempty"`
	Status        ReportStatus  `json:"status"`

	Review        *Review `json:"-"`
	RewardAmount  *int64  `json:"rewardAmount,omitempty"`
	PenaltyAmount *int64  `json:"penaltyAmount,omitempty"`
	Appeal        *Appeal `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EffectiveStatus is the outcome after any appeal. A successful appeal
// overturns a rejection without rewriting the base status.
func (r *CitizenReport) EffectiveStatus() ReportStatus {
	if r.Status == StatusRejected && r.Appeal != nil && r.Appeal.Status() == StatusApproved {
		return StatusApproved
	}
	return r.Status
}

// SettlementContribution sums the ledger effect of this report.
func (r *CitizenReport) SettlementContribution() int64 {
	var total int64
	if r.RewardAmount != nil {
		total += *r.RewardAmount
	}
	if r.PenaltyAmount != nil {
		total -= *r.PenaltyAmount
	}
	if r.Appeal != nil && r.Appeal.Resolution != nil {
		res := r.Appeal.Resolution
		if res.Decision == StatusApproved && r.PenaltyAmount != nil {
			total += *r.PenaltyAmount
		}
		if res.AdditionalPenalty != nil {
			total -= *res.AdditionalPenalty
		}
	}
	return total
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxReward    TransactionType = "REWARD"
	TxPenalty   TransactionType = "PENALTY"
	TxBonus     TransactionType = "BONUS"
	TxDeduction TransactionType = "DEDUCTION"
)

// TransactionSource names what produced a ledger entry.
type TransactionSource string

const (
	SourceCitizenReport TransactionSource = "CITIZEN_REPORT"
	SourceViolation     TransactionSource = "VIOLATION"
	SourceFinePayment   TransactionSource = "FINE_PAYMENT"
	SourceSystem        TransactionSource = "SYSTEM"
)

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "PENDING"
	TxStatusCompleted TransactionStatus = "COMPLETED"
	TxStatusCancelled TransactionStatus = "CANCELLED"
)

// SettlementTransaction is one append-only ledger entry. Amount is signed:
// positive credits the user, negative debits.
type SettlementTransaction struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	Amount          int64             `json:"amount"`
	Type            TransactionType   `json:"type"`
	Source          TransactionSource `json:"source"`
	RelatedReportID *string           `json:"relatedReportId"`
	Status          TransactionStatus `json:"status"`
	Description     string            `json:"description,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// DebtStatus is the collection state of a debt.
type DebtStatus string

const (
	DebtOutstanding DebtStatus = "OUTSTANDING"
	DebtPaid        DebtStatus = "PAID"
	DebtWaived      DebtStatus = "WAIVED"
	DebtPartial     DebtStatus = "PARTIAL"
)

// Open reports whether the debt still expects payment.
func (s DebtStatus) Open() bool {
	return s == DebtOutstanding || s == DebtPartial
}

// OutstandingDebt is an unpaid penalty that ages into late fees.
type OutstandingDebt struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	TransactionID    string     `json:"transactionId"`
	RelatedReportID  *string    `json:"relatedReportId,omitempty"`
	OriginalAmount   int64      `json:"originalAmount"`
	CurrentAmount    int64      `json:"currentAmount"`
	LateFees         int64      `json:"lateFees"`
	WeeksPastDue     int        `json:"weeksPastDue"`
	DueDate          time.Time  `json:"dueDate"`
	Status           DebtStatus `json:"status"`
	PaidAmount       int64      `json:"paidAmount"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	PaymentMethod    string     `json:"paymentMethod,omitempty"`
	PaymentReference string     `json:"paymentReference,omitempty"`
	LastAccrualKey   string     `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Remaining is what is still owed on the debt.
func (d *OutstandingDebt) Remaining() int64 {
	return d.CurrentAmount - d.PaidAmount
}

// ReportActivity is one entry in a report's audit trail.
type ReportActivity struct {
	ID           string    `json:"id"`
	ReportID     string    `json:"reportId"`
	ActivityType string    `json:"activityType"`
	ActorID      string    `json:"actorId"`
	ActorRole    string    `json:"actorRole"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Activity types recorded against a report.
const (
	ActivitySubmitted      = "submitted"
	ActivityReviewed       = "reviewed"
	ActivityAppealFiled    = "appeal_filed"
	ActivityAppealResolved = "appeal_resolved"
)

// MerkleProof contains the Merkle proof for a specific ledger entry
type MerkleProof struct {
	LeafHash string      `json:"leaf_hash"`
	Root     string      `json:"root"`
	Proof    []ProofStep `json:"proof"`
	Index    int         `json:"index"`
	Verified bool        `json:"verified"`
}

// ProofStep is a single step in a Merkle proof path
type ProofStep struct {
	Hash     string `json:"hash"`
	Position string `json:"position"` // "left" | "right"
}

// AnalyticsTrend represents aggregated report trend data
type AnalyticsTrend struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// CategoryDistribution for pie/bar charts
type CategoryDistribution struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// HealthStatus represents the server health check response
type HealthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
	Redis    string `json:"redis,omitempty"`
}

// Role is the authorization role carried in the access token.
type Role string

const (
	RoleCitizen Role = "citizen"
	RolePolice  Role = "police"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsStaff reports whether the actor adjudicates reports.
func (a Actor) IsStaff() bool {
	return a.Role == RolePolice || a.Role == RoleAdmin
}
