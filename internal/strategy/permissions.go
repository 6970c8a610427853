package strategy

import (
	"context"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

// PermissionAuditor 在可见性变更成功后记录一条权限变更审计。
// 由审计服务实现，写入异步尽力而为，失败不影响主操作。
type PermissionAuditor interface {
	RecordPermissionChange(fileID, tenantID, actorID string, oldVis, newVis domain.FileVisibility, reason string)
}

// ModifyPermissionsStrategy 负责改权限的记账：校验管理级权限、
// 写入新可见性、发出带新旧值的权限变更审计。
type ModifyPermissionsStrategy struct {
	files   repository.FileRepository
	auditor PermissionAuditor
}

func NewModifyPermissionsStrategy(files repository.FileRepository, auditor PermissionAuditor) *ModifyPermissionsStrategy {
	return &ModifyPermissionsStrategy{files: files, auditor: auditor}
}

func (s *ModifyPermissionsStrategy) Operation() domain.FileOperation {
	return domain.OperationModifyPermissions
}

func (s *ModifyPermissionsStrategy) Execute(ctx context.Context, in Input) (*domain.FileRecord, error) {
	req := in.Request
	record := in.Record

	// 权限阶段已按矩阵裁决过，这里再校验管理级角色，双保险
	if !domain.CanAdminister(req.ActorRole) {
		return nil, domain.NewError(domain.CodePermissionDenied, "administrative role required")
	}

	newVis := req.Visibility
	if !newVis.Valid() {
		return nil, domain.NewError(domain.CodeValidation, "invalid target visibility")
	}

	oldVis := record.Visibility
	if err := s.files.UpdateVisibility(ctx, req.TenantID, req.FileID, newVis); err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewError(domain.CodeNotFound, "file not found")
		}
		return nil, domain.WrapError(domain.CodeMetadataConflict, "visibility update failed", err)
	}

	if s.auditor != nil {
		s.auditor.RecordPermissionChange(req.FileID, req.TenantID, req.ActorID, oldVis, newVis, reasonOf(req))
	}

	updated := *record
	updated.Visibility = newVis
	return &updated, nil
}

func reasonOf(req *domain.ProcessContext) string {
	if req.Attributes != nil {
		return req.Attributes["reason"]
	}
	return ""
}
