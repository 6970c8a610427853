package strategy

import (
	"context"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

// ViewStrategy 负责查看的记账：访问计数加一、刷新最近访问时间，不动可见性。
type ViewStrategy struct {
	files repository.FileRepository
}

func NewViewStrategy(files repository.FileRepository) *ViewStrategy {
	return &ViewStrategy{files: files}
}

func (s *ViewStrategy) Operation() domain.FileOperation {
	return domain.OperationView
}

func (s *ViewStrategy) Execute(ctx context.Context, in Input) (*domain.FileRecord, error) {
	return bumpAccess(ctx, s.files, in)
}

// DownloadStrategy 负责下载的记账，与查看同样只累计访问。
type DownloadStrategy struct {
	files repository.FileRepository
}

func NewDownloadStrategy(files repository.FileRepository) *DownloadStrategy {
	return &DownloadStrategy{files: files}
}

func (s *DownloadStrategy) Operation() domain.FileOperation {
	return domain.OperationDownload
}

func (s *DownloadStrategy) Execute(ctx context.Context, in Input) (*domain.FileRecord, error) {
	return bumpAccess(ctx, s.files, in)
}

func bumpAccess(ctx context.Context, files repository.FileRepository, in Input) (*domain.FileRecord, error) {
	req := in.Request
	updated, err := files.IncrementAccess(ctx, req.TenantID, req.FileID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewError(domain.CodeNotFound, "file not found")
		}
		return nil, domain.WrapError(domain.CodeMetadataConflict, "access counter update failed", err)
	}
	return updated, nil
}
