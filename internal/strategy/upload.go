package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

// UploadStrategy 负责上传的记账：校验租户配额、创建元数据记录、累加用量。
type UploadStrategy struct {
	files      repository.FileRepository
	usage      repository.UsageRepository
	quotaBytes int64 // 0 表示不限额
}

func NewUploadStrategy(files repository.FileRepository, usage repository.UsageRepository, quotaBytes int64) *UploadStrategy {
	return &UploadStrategy{files: files, usage: usage, quotaBytes: quotaBytes}
}

func (s *UploadStrategy) Operation() domain.FileOperation {
	return domain.OperationUpload
}

// Execute 创建文件记录。配额不足时直接失败，此时存储侧写入由流水线补偿删除。
func (s *UploadStrategy) Execute(ctx context.Context, in Input) (*domain.FileRecord, error) {
	req := in.Request

	if s.quotaBytes > 0 {
		current, err := s.usage.GetUsage(ctx, req.TenantID)
		if err != nil {
			return nil, domain.WrapError(domain.CodeMetadataConflict, "quota lookup failed", err)
		}
		if current.UsedBytes+req.SizeBytes > s.quotaBytes {
			return nil, domain.NewError(domain.CodeQuotaExceeded,
				fmt.Sprintf("tenant storage quota exceeded (%d of %d bytes used)", current.UsedBytes, s.quotaBytes))
		}
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}

	fileID := req.FileID
	if fileID == "" {
		fileID = uuid.NewString()
	}

	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	now := time.Now().UTC()
	record := &domain.FileRecord{
		ID:           fileID,
		TenantID:     req.TenantID,
		OriginalName: req.FileName,
		Category:     req.Category,
		FolderPath:   req.FolderPath,
		MimeType:     mimeType,
		SizeBytes:    req.SizeBytes,
		Backend:      in.Location.Backend,
		Bucket:       in.Location.Bucket,
		StorageKey:   in.Location.Key,
		UploaderID:   req.ActorID,
		Visibility:   visibility,
		Tags:         []string{},
		Status:       domain.FileStatusStored,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.files.Create(ctx, record)
	if err != nil {
		return nil, domain.WrapError(domain.CodeMetadataConflict, "file record creation failed", err)
	}

	if err := s.usage.AddUsage(ctx, req.TenantID, req.SizeBytes, 1); err != nil {
		return nil, domain.WrapError(domain.CodeMetadataConflict, "usage counter update failed", err)
	}

	return created, nil
}
