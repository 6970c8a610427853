package strategy

import (
	"context"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

// DeleteStrategy 负责删除的记账：软删除元数据并回减租户用量。
// 软删除保留记录行，审计轨迹始终可关联。
type DeleteStrategy struct {
	files repository.FileRepository
	usage repository.UsageRepository
}

func NewDeleteStrategy(files repository.FileRepository, usage repository.UsageRepository) *DeleteStrategy {
	return &DeleteStrategy{files: files, usage: usage}
}

func (s *DeleteStrategy) Operation() domain.FileOperation {
	return domain.OperationDelete
}

func (s *DeleteStrategy) Execute(ctx context.Context, in Input) (*domain.FileRecord, error) {
	req := in.Request
	record := in.Record

	if err := s.files.UpdateStatus(ctx, req.TenantID, req.FileID, domain.FileStatusDeleted); err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewError(domain.CodeNotFound, "file not found")
		}
		return nil, domain.WrapError(domain.CodeMetadataConflict, "soft delete failed", err)
	}

	if err := s.usage.AddUsage(ctx, req.TenantID, -record.SizeBytes, -1); err != nil {
		return nil, domain.WrapError(domain.CodeMetadataConflict, "usage counter update failed", err)
	}

	deleted := *record
	deleted.Status = domain.FileStatusDeleted
	return &deleted, nil
}
