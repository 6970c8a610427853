package audit

import (
	"context"
	"fmt"
	"time"

	"familyvault/internal/domain"
)

// 风险启发式参数。分数只是告警信号，不参与访问控制。
const (
	visibilityChangeWindow    = 7 * 24 * time.Hour
	visibilityChangeThreshold = 5
	visibilityChangePoints    = 20

	denialRateWindow    = 24 * time.Hour
	denialRateThreshold = 0.30
	denialRatePoints    = 25

	distinctActorWindow    = 7 * 24 * time.Hour
	distinctActorThreshold = 3
	distinctActorPoints    = 15

	mediumRiskFloor = 30
	highRiskFloor   = 60
)

// ComputeRiskScore 基于审计历史计算文件的启发式风险分。
// 结果带短 TTL 缓存，审计写入异步落库，分数本就允许轻微滞后。
func (s *Service) ComputeRiskScore(ctx context.Context, fileID string) (domain.RiskScore, error) {
	if cached, ok := s.riskCache.Get(fileID); ok {
		return cached, nil
	}

	now := time.Now().UTC()
	score := domain.RiskScore{FileID: fileID, Factors: []string{}}

	changes, err := s.repo.CountVisibilityChangesSince(ctx, fileID, now.Add(-visibilityChangeWindow))
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("count visibility changes: %w", err)
	}
	if changes > visibilityChangeThreshold {
		score.Score += visibilityChangePoints
		score.Factors = append(score.Factors,
			fmt.Sprintf("%d visibility changes in the last 7 days", changes))
	}

	stats, err := s.repo.AccessStatsSince(ctx, fileID, now.Add(-denialRateWindow))
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("access stats: %w", err)
	}
	if total := stats.Allowed + stats.Denied; total > 0 {
		rate := float64(stats.Denied) / float64(total)
		if rate > denialRateThreshold {
			score.Score += denialRatePoints
			score.Factors = append(score.Factors,
				fmt.Sprintf("%.0f%% of access attempts denied in the last 24 hours", rate*100))
		}
	}

	actors, err := s.repo.CountDistinctActorsSince(ctx, fileID, now.Add(-distinctActorWindow))
	if err != nil {
		return domain.RiskScore{}, fmt.Errorf("count distinct actors: %w", err)
	}
	if actors > distinctActorThreshold {
		score.Score += distinctActorPoints
		score.Factors = append(score.Factors,
			fmt.Sprintf("%d distinct actors in the last 7 days", actors))
	}

	score.Level = levelOf(score.Score)
	s.riskCache.Add(fileID, score)
	return score, nil
}

func levelOf(score int) domain.RiskLevel {
	switch {
	case score >= highRiskFloor:
		return domain.RiskHigh
	case score >= mediumRiskFloor:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
