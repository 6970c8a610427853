package repository

import (
	"context"
	"time"

	"familyvault/internal/domain"
)

// AccessStats 汇总某时间窗内的访问裁决次数。
type AccessStats struct {
	Allowed int
	Denied  int
}

// AuditRepository 是只追加的审计存储接口。
// 记录只在保留期清理时按时间删除，从不更新。
type AuditRepository interface {
	// Append 追加一条审计记录，seq 由存储侧分配并保证单文件内单调。
	Append(ctx context.Context, record *domain.AuditRecord) error
	// ListByFile 按时间倒序返回某文件最近的审计记录。
	ListByFile(ctx context.Context, fileID string, limit int) ([]domain.AuditRecord, error)
	// CountVisibilityChangesSince 统计 since 之后的可见性变更次数。
	CountVisibilityChangesSince(ctx context.Context, fileID string, since time.Time) (int, error)
	// AccessStatsSince 统计 since 之后的放行/拒绝次数。
	AccessStatsSince(ctx context.Context, fileID string, since time.Time) (AccessStats, error)
	// CountDistinctActorsSince 统计 since 之后触碰过该文件的不同操作者数。
	CountDistinctActorsSince(ctx context.Context, fileID string, since time.Time) (int, error)
	// ActorOperationStats 统计某操作者在 since 之后各操作的次数。
	ActorOperationStats(ctx context.Context, actorID string, since time.Time) (map[domain.FileOperation]int, error)
	// DeleteOlderThan 删除早于 cutoff 的记录，返回删除行数。仅供保留期清理使用。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
