package models

import (
	"encoding/json"
	"time"
)

// reportView is the wire shape the dashboards consume: review and appeal
// fields are flattened next to the report.
type reportView struct {
	reportAlias

	EffectiveStatus ReportStatus `json:"effectiveStatus"`

	ReviewerID  *string    `json:"reviewerId"`
	ReviewNotes *string    `json:"reviewNotes"`
	ReviewedAt  *time.Time `json:"reviewedAt"`

	AppealSubmitted         bool          `json:"appealSubmitted"`
	AppealReason            *string       `json:"appealReason,omitempty"`
	AppealStatus            *ReportStatus `json:"appealStatus,omitempty"`
	AppealNotes             *string       `json:"appealNotes,omitempty"`
	AdditionalPenaltyAmount *int64        `json:"additionalPenaltyAmount,omitempty"`
	AppealFiledAt           *time.Time    `json:"appealFiledAt,omitempty"`
	AppealReviewedAt        *time.Time    `json:"appealReviewedAt,omitempty"`
}

type reportAlias CitizenReport

// MarshalJSON renders the flattened report view.
func (r CitizenReport) MarshalJSON() ([]byte, error) {
	v := reportView{
		reportAlias:     reportAlias(r),
		EffectiveStatus: r.EffectiveStatus(),
	}

	if r.Review != nil {
		v.ReviewerID = &r.Review.ReviewerID
		v.ReviewNotes = &r.Review.Notes
		v.ReviewedAt = &r.Review.ReviewedAt
	}

	if a := r.Appeal; a != nil {
		status := a.Status()
		v.AppealSubmitted = true
		v.AppealReason = &a.Reason
		v.AppealStatus = &status
		v.AppealFiledAt = &a.FiledAt
		if res := a.Resolution; res != nil {
			v.AppealNotes = &res.Notes
			v.AdditionalPenaltyAmount = res.AdditionalPenalty
			v.AppealReviewedAt = &res.ReviewedAt
		}
	}

	return json.Marshal(v)
}
