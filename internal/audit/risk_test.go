package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

func TestComputeRiskScore_QuietFileIsLow(t *testing.T) {
	repo := &memAuditRepo{}
	svc := newTestService(repo, Config{})

	score, err := svc.ComputeRiskScore(context.Background(), "file-1")
	require.NoError(t, err)

	assert.Equal(t, 0, score.Score)
	assert.Equal(t, domain.RiskLow, score.Level)
	assert.Empty(t, score.Factors)
}

func TestComputeRiskScore_FactorsAccumulate(t *testing.T) {
	repo := &memAuditRepo{
		visibilityChanges: 6,                                                // 超过 5 次 → +20
		accessStats:       repository.AccessStats{Allowed: 5, Denied: 10},   // 66% 拒绝率 → +25
		distinctActors:    4,                                                // 超过 3 人 → +15
	}
	svc := newTestService(repo, Config{})

	score, err := svc.ComputeRiskScore(context.Background(), "file-1")
	require.NoError(t, err)

	assert.Equal(t, 60, score.Score)
	assert.Equal(t, domain.RiskHigh, score.Level)
	assert.Len(t, score.Factors, 3)
}

func TestComputeRiskScore_MediumBand(t *testing.T) {
	repo := &memAuditRepo{
		accessStats:    repository.AccessStats{Allowed: 1, Denied: 9},
		distinctActors: 4,
	}
	svc := newTestService(repo, Config{})

	score, err := svc.ComputeRiskScore(context.Background(), "file-1")
	require.NoError(t, err)

	assert.Equal(t, 40, score.Score)
	assert.Equal(t, domain.RiskMedium, score.Level)
}

// 阈值恰好相等时不加分，拒绝率低于 30% 同理。
func TestComputeRiskScore_ThresholdsAreExclusive(t *testing.T) {
	repo := &memAuditRepo{
		visibilityChanges: 5,
		accessStats:       repository.AccessStats{Allowed: 8, Denied: 2},
		distinctActors:    3,
	}
	svc := newTestService(repo, Config{})

	score, err := svc.ComputeRiskScore(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, 0, score.Score)
	assert.Equal(t, domain.RiskLow, score.Level)
}

// 结果带短 TTL 缓存：仓库端数据变化不会立刻反映。
func TestComputeRiskScore_Cached(t *testing.T) {
	repo := &memAuditRepo{}
	svc := newTestService(repo, Config{})

	first, err := svc.ComputeRiskScore(context.Background(), "file-1")
	require.NoError(t, err)
	require.Equal(t, domain.RiskLow, first.Level)

	repo.visibilityChanges = 100
	repo.distinctActors = 100

	cached, err := svc.ComputeRiskScore(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, first.Score, cached.Score)
}

func TestLevelOf_Bands(t *testing.T) {
	assert.Equal(t, domain.RiskLow, levelOf(0))
	assert.Equal(t, domain.RiskLow, levelOf(29))
	assert.Equal(t, domain.RiskMedium, levelOf(30))
	assert.Equal(t, domain.RiskMedium, levelOf(59))
	assert.Equal(t, domain.RiskHigh, levelOf(60))
	assert.Equal(t, domain.RiskHigh, levelOf(100))
}
