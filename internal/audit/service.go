// Package audit 记录访问尝试与权限变更，并基于审计历史计算启发式风险分。
// 写入走单个后台协程，异步尽力而为：队列满了就丢弃并计数，
// 绝不让审计失败拖垮主操作；单协程消费同时保证了单文件内的写入顺序。
package audit

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

// Config 是审计服务的运行参数。
type Config struct {
	QueueSize     int
	Retention     time.Duration
	SweepInterval time.Duration
	RiskCacheSize int
	RiskCacheTTL  time.Duration
}

// Service 实现审计与风险评分。
type Service struct {
	repo      repository.AuditRepository
	queue     chan domain.AuditRecord
	riskCache *lru.LRU[string, domain.RiskScore]
	retention time.Duration
	sweepEach time.Duration
	logger    zerolog.Logger
}

// NewService 创建审计服务。Run 必须在独立协程中启动后写入才会落库。
func NewService(repo repository.AuditRepository, cfg Config, logger zerolog.Logger) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	cacheSize := cfg.RiskCacheSize
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cacheTTL := cfg.RiskCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		queue:     make(chan domain.AuditRecord, queueSize),
		riskCache: lru.NewLRU[string, domain.RiskScore](cacheSize, nil, cacheTTL),
		retention: cfg.Retention,
		sweepEach: cfg.SweepInterval,
		logger:    logger.With().Str("component", "audit").Logger(),
	}
}

// RecordAccessAttempt 记录一次访问尝试的裁决。
func (s *Service) RecordAccessAttempt(fileID, tenantID, actorID string, op domain.FileOperation, allowed bool, reason string) {
	result := domain.AccessDenied
	if allowed {
		result = domain.AccessAllowed
	}

	s.enqueue(domain.AuditRecord{
		ID:         uuid.NewString(),
		FileID:     fileID,
		TenantID:   tenantID,
		ActorID:    actorID,
		Operation:  op,
		Result:     result,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

// RecordPermissionChange 记录一次带新旧值的可见性变更。
func (s *Service) RecordPermissionChange(fileID, tenantID, actorID string, oldVis, newVis domain.FileVisibility, reason string) {
	s.enqueue(domain.AuditRecord{
		ID:         uuid.NewString(),
		FileID:     fileID,
		TenantID:   tenantID,
		ActorID:    actorID,
		Operation:  domain.OperationModifyPermissions,
		Result:     domain.AccessAllowed,
		OldVis:     &oldVis,
		NewVis:     &newVis,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *Service) enqueue(record domain.AuditRecord) {
	select {
	case s.queue <- record:
		auditQueueDepth.Set(float64(len(s.queue)))
	default:
		auditDroppedTotal.Inc()
		s.logger.Warn().
			Str("file_id", record.FileID).
			Str("operation", string(record.Operation)).
			Msg("审计队列已满，丢弃记录")
	}
}

// Run 启动写入协程与保留期清理，阻塞到 ctx 取消后清空残余队列。
func (s *Service) Run(ctx context.Context) {
	sweepEach := s.sweepEach
	if sweepEach <= 0 {
		sweepEach = time.Hour
	}
	ticker := time.NewTicker(sweepEach)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case record := <-s.queue:
			s.append(record)
			auditQueueDepth.Set(float64(len(s.queue)))
		case <-ticker.C:
			s.sweep()
		}
	}
}

// drain 关停时把队列里攒下的记录尽量写完。
func (s *Service) drain() {
	for {
		select {
		case record := <-s.queue:
			s.append(record)
		default:
			return
		}
	}
}

func (s *Service) append(record domain.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Append(ctx, &record); err != nil {
		auditWriteErrorsTotal.Inc()
		s.logger.Error().
			Str("file_id", record.FileID).
			Err(err).
			Msg("审计写入失败")
	}
}

func (s *Service) sweep() {
	if s.retention <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("审计保留期清理失败")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("审计保留期清理完成")
	}
}

// GetAuditTrail 按时间倒序返回某文件最近的审计记录。
func (s *Service) GetAuditTrail(ctx context.Context, fileID string, limit int) ([]domain.AuditRecord, error) {
	return s.repo.ListByFile(ctx, fileID, limit)
}

// ActorOperationStats 返回某操作者在时间窗内各操作的次数。
func (s *Service) ActorOperationStats(ctx context.Context, actorID string, window time.Duration) (map[domain.FileOperation]int, error) {
	return s.repo.ActorOperationStats(ctx, actorID, time.Now().UTC().Add(-window))
}
