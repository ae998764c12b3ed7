package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCitizenReport_MarshalJSON_Pending(t *testing.T) {
	r := CitizenReport{
		ID:            "r1",
		CitizenID:     "c1",
		VehiclePlate:  "DHA-1234",
		ViolationType: ViolationSpeeding,
		EvidenceURLs:  []string{"https://cdn.example/1.jpg"},
		Status:        StatusPending,
	}

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, "PENDING", got["status"])
	assert.Equal(t, "PENDING", got["effectiveStatus"])
	assert.Equal(t, false, got["appealSubmitted"])
	assert.Nil(t, got["reviewerId"])
	assert.Nil(t, got["reviewedAt"])
	assert.NotContains(t, got, "appealStatus")
	assert.NotContains(t, got, "rewardAmount")
}

func TestCitizenReport_MarshalJSON_ResolvedAppeal(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	r := CitizenReport{
		ID:            "r1",
		Status:        StatusRejected,
		PenaltyAmount: ptr(int64(1000)),
		Review:        &Review{ReviewerID: "p1", Notes: "blurry", ReviewedAt: now},
		Appeal: &Appeal{
			Reason:  "wrong plate read",
			FiledAt: now,
			Resolution: &AppealResolution{
				Decision:          StatusRejected,
				ReviewerID:        "p2",
				Notes:             "upheld",
				AdditionalPenalty: ptr(int64(15)),
				ReviewedAt:        now,
			},
		},
	}

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, "p1", got["reviewerId"])
	assert.Equal(t, "blurry", got["reviewNotes"])
	assert.Equal(t, true, got["appealSubmitted"])
	assert.Equal(t, "REJECTED", got["appealStatus"])
	assert.Equal(t, "upheld", got["appealNotes"])
	assert.Equal(t, float64(15), got["additionalPenaltyAmount"])
	assert.Equal(t, float64(1000), got["penaltyAmount"])
	assert.Equal(t, "REJECTED", got["effectiveStatus"])
}

func TestCitizenReport_EffectiveStatusAndContribution(t *testing.T) {
	r := CitizenReport{Status: StatusRejected, PenaltyAmount: ptr(int64(1000))}
	assert.Equal(t, StatusRejected, r.EffectiveStatus())
	assert.Equal(t, int64(-1000), r.SettlementContribution())

	r.Appeal = &Appeal{Reason: "x"}
	assert.Equal(t, StatusPending, r.Appeal.Status())
	assert.Equal(t, StatusRejected, r.EffectiveStatus())

	r.Appeal.Resolution = &AppealResolution{Decision: StatusApproved}
	assert.Equal(t, StatusApproved, r.EffectiveStatus())
	assert.Equal(t, int64(0), r.SettlementContribution())

	r.Appeal.Resolution = &AppealResolution{Decision: StatusRejected, AdditionalPenalty: ptr(int64(15))}
	assert.Equal(t, int64(-1015), r.SettlementContribution())

	approved := CitizenReport{Status: StatusApproved, RewardAmount: ptr(int64(500))}
	assert.Equal(t, int64(500), approved.SettlementContribution())
}

func TestEnums(t *testing.T) {
	assert.True(t, ViolationRedLight.Valid())
	assert.False(t, ViolationType("JAYWALKING").Valid())
	assert.True(t, StatusPending.Valid())
	assert.False(t, StatusPending.IsDecision())
	assert.True(t, StatusRejected.IsDecision())
	assert.True(t, DebtPartial.Open())
	assert.False(t, DebtWaived.Open())
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 2, Limit: 10, Total: 25, TotalPages: 3}, NewPagination(2, 10, 25))
	assert.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
}
