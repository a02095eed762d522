package repository

import (
	"context"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/platform/apperr"

	"github.com/google/uuid"
)

// UpsertScore writes the score keyed by lead id; rescoring overwrites.
func (r *Repository) UpsertScore(ctx context.Context, s domain.Score) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO lead_qualification_scores (
			lead_id, timeline_score, financial_readiness_score, engagement_score,
			response_speed_score, specificity_score, total_score, quality_tier,
			scoring_version, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (lead_id) DO UPDATE SET
			timeline_score = EXCLUDED.timeline_score,
			financial_readiness_score = EXCLUDED.financial_readiness_score,
			engagement_score = EXCLUDED.engagement_score,
			response_speed_score = EXCLUDED.response_speed_score,
			specificity_score = EXCLUDED.specificity_score,
			total_score = EXCLUDED.total_score,
			quality_tier = EXCLUDED.quality_tier,
			scoring_version = EXCLUDED.scoring_version,
			computed_at = EXCLUDED.computed_at`,
		s.LeadID, s.Timeline, s.FinancialReadiness, s.Engagement,
		s.ResponseSpeed, s.Specificity, s.Total, string(s.Tier),
		s.Version, s.ComputedAt,
	)
	if err != nil {
		return apperr.Persistence("scores.upsert", err)
	}
	return nil
}

func (r *Repository) GetScore(ctx context.Context, leadID uuid.UUID) (domain.Score, error) {
	var (
		s    domain.Score
		tier string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT lead_id, timeline_score, financial_readiness_score, engagement_score,
		        response_speed_score, specificity_score, total_score, quality_tier,
		        scoring_version, computed_at
		 FROM lead_qualification_scores
		 WHERE lead_id = $1`,
		leadID,
	).Scan(&s.LeadID, &s.Timeline, &s.FinancialReadiness, &s.Engagement,
		&s.ResponseSpeed, &s.Specificity, &s.Total, &tier, &s.Version, &s.ComputedAt)
	if err != nil {
		return domain.Score{}, rowError("scores.get", "score", err)
	}
	s.Tier = domain.Tier(tier)
	return s, nil
}
