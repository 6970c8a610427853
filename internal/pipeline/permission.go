package pipeline

import (
	"context"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

// AccessRecorder 记录一次访问尝试的裁决，由审计服务实现。
// 写入异步尽力而为，失败绝不影响主操作。
type AccessRecorder interface {
	RecordAccessAttempt(fileID, tenantID, actorID string, op domain.FileOperation, allowed bool, reason string)
}

// PermissionStage 在存储 I/O 之前评估权限矩阵。
// 被拒请求不触达任何后端字节，也不产生元数据写入，但会被审计。
type PermissionStage struct {
	files    repository.FileRepository
	recorder AccessRecorder
}

func NewPermissionStage(files repository.FileRepository, recorder AccessRecorder) *PermissionStage {
	return &PermissionStage{files: files, recorder: recorder}
}

func (s *PermissionStage) Name() string { return "permission" }

func (s *PermissionStage) Run(ctx context.Context, exec *Execution) error {
	req := exec.Request

	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}

	// 非上传操作先预加载记录，裁决依据已存可见性
	if req.Operation != domain.OperationUpload {
		record, err := s.files.GetByID(ctx, req.TenantID, req.FileID)
		if err != nil {
			if err == repository.ErrNotFound {
				return domain.NewError(domain.CodeNotFound, "file not found")
			}
			return domain.WrapError(domain.CodeMetadataConflict, "metadata lookup failed", err)
		}
		if record.Status == domain.FileStatusDeleted {
			// 已删文件的任何操作统一报 not found，重复删除因此天然幂等
			return domain.NewError(domain.CodeNotFound, "file already deleted")
		}
		exec.Record = record
		visibility = record.Visibility
	}

	if !domain.IsAllowed(req.ActorRole, visibility, req.Operation) {
		reason := "operation not permitted for role at this visibility"
		if s.recorder != nil {
			s.recorder.RecordAccessAttempt(req.FileID, req.TenantID, req.ActorID, req.Operation, false, reason)
		}
		return domain.NewError(domain.CodePermissionDenied, reason)
	}

	return nil
}
