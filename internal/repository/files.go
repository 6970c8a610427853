package repository

import (
	"context"

	"familyvault/internal/domain"
)

// ListFilesParams 用于分页检索文件元数据。
type ListFilesParams struct {
	Statuses     []domain.FileStatus
	Visibilities []domain.FileVisibility
	Category     string
	Limit        int
	Offset       int
}

// FileRepository 统一文件元数据持久层接口。
// 元数据只能经由各操作策略读写，流水线不直接触碰。
type FileRepository interface {
	Create(ctx context.Context, record *domain.FileRecord) (*domain.FileRecord, error)
	// GetByID 在租户命名空间内按主键查询，查不到返回 ErrNotFound。
	GetByID(ctx context.Context, tenantID, id string) (*domain.FileRecord, error)
	List(ctx context.Context, tenantID string, params ListFilesParams) ([]domain.FileRecord, error)
	// UpdateStatus 更新生命周期状态（删除为软删除）。
	UpdateStatus(ctx context.Context, tenantID, id string, status domain.FileStatus) error
	// UpdateVisibility 写入新的可见性等级。
	UpdateVisibility(ctx context.Context, tenantID, id string, vis domain.FileVisibility) error
	// IncrementAccess 将访问计数加一并刷新最近访问时间，返回更新后的记录。
	IncrementAccess(ctx context.Context, tenantID, id string) (*domain.FileRecord, error)
}
