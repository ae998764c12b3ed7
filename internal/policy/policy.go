// Package policy holds the numeric settlement rules: default reward and
// penalty pricing, the appeal surcharge, and late-fee accrual.
package policy

import (
	"fmt"
	"time"

	"github.com/aawaaz/citizen-report-server/internal/models"
)

// AdditionalPenaltyRate is applied to the original penalty when an appeal is
// rejected, in parts per thousand (1.5%).
const AdditionalPenaltyRate = 15

// AdditionalPenalty returns round(penalty × 0.015), rounding half up.
func AdditionalPenalty(penalty int64) int64 {
	if penalty <= 0 {
		return 0
	}
	return (penalty*AdditionalPenaltyRate + 500) / 1000
}

// Pricing supplies the amount used when a reviewer does not set one.
type Pricing struct {
	DefaultReward  int64
	DefaultPenalty int64
	// Weight scales the defaults per violation type, in percent.
	Weight map[models.ViolationType]int64
}

// DefaultWeights makes serious offences pay (and cost) more.
var DefaultWeights = map[models.ViolationType]int64{
	models.ViolationRecklessDriving: 200,
	models.ViolationWrongWay:        150,
	models.ViolationRedLight:        150,
	models.ViolationSpeeding:        120,
	models.ViolationIllegalParking:  50,
}

// NewPricing builds a Pricing with the default weights.
func NewPricing(reward, penalty int64) Pricing {
	return Pricing{DefaultReward: reward, DefaultPenalty: penalty, Weight: DefaultWeights}
}

func (p Pricing) weight(v models.ViolationType) int64 {
	if w, ok := p.Weight[v]; ok {
		return w
	}
	return 100
}

// RewardFor is the default reward for an approved report.
func (p Pricing) RewardFor(v models.ViolationType) int64 {
	return p.DefaultReward * p.weight(v) / 100
}

// PenaltyFor is the default penalty for a rejected report.
func (p Pricing) PenaltyFor(v models.ViolationType) int64 {
	return p.DefaultPenalty * p.weight(v) / 100
}

// LateFees computes overdue surcharges as a flat weekly rate on the original
// amount. The result never decreases as weeks grow.
type LateFees struct {
	WeeklyBPS int64 // basis points of the original amount per week
	MaxWeeks  int   // weeks beyond this no longer add fees; 0 means no cap
}

// Fee returns the late fee owed after weeks full weeks past due.
func (l LateFees) Fee(original int64, weeks int) int64 {
	if weeks <= 0 || original <= 0 || l.WeeklyBPS <= 0 {
		return 0
	}
	if l.MaxWeeks > 0 && weeks > l.MaxWeeks {
		weeks = l.MaxWeeks
	}
	return original * l.WeeklyBPS * int64(weeks) / 10000
}

// WeeksPastDue is max(0, floor((now - due) / 7 days)).
func WeeksPastDue(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(now.Sub(due) / (7 * 24 * time.Hour))
}

// PeriodKey identifies the accrual period containing t (its ISO week).
func PeriodKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
