package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the quality band derived from the total score.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

const (
	HotThreshold  = 70
	WarmThreshold = 40
)

// TierFor maps a total score onto its band.
func TierFor(total int) Tier {
	switch {
	case total >= HotThreshold:
		return TierHot
	case total >= WarmThreshold:
		return TierWarm
	default:
		return TierCold
	}
}

// Score is a lead's persisted qualification result. At most one per lead.
type Score struct {
	LeadID             uuid.UUID `json:"leadId"`
	Timeline           int       `json:"timelineScore"`
	FinancialReadiness int       `json:"financialReadinessScore"`
	Engagement         int       `json:"engagementScore"`
	ResponseSpeed      int       `json:"responseSpeedScore"`
	Specificity        int       `json:"specificityScore"`
	Total              int       `json:"totalScore"`
	Tier               Tier      `json:"qualityTier"`
	Version            string    `json:"scoringVersion"`
	ComputedAt         time.Time `json:"computedAt"`
}

// Sum adds the five components.
func (s Score) Sum() int {
	return s.Timeline + s.FinancialReadiness + s.Engagement + s.ResponseSpeed + s.Specificity
}

// Matches reports whether the creation-time temperature agrees with the tier.
func (t Temperature) Matches(tier Tier) bool {
	return string(t) == string(tier)
}
