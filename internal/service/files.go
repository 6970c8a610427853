package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"familyvault/internal/domain"
	"familyvault/internal/pipeline"
	"familyvault/internal/postprocess"
	"familyvault/internal/repository"
	"familyvault/internal/storage"
)

// Identity 是身份协作方给出的请求方信息，核心只信任不认证。
type Identity struct {
	ActorID  string
	TenantID string
	Role     domain.UserRole
}

// FileService 是文件请求的入口层：构造一次性的 ProcessContext，
// 交给流水线执行，并在上传成功后触发异步后置任务。
type FileService struct {
	pipe     *pipeline.Pipeline
	files    repository.FileRepository
	registry *storage.Registry
	trigger  *postprocess.Trigger
	urlTTL   time.Duration
}

func NewFileService(pipe *pipeline.Pipeline, files repository.FileRepository, registry *storage.Registry, trigger *postprocess.Trigger, urlTTL time.Duration) *FileService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &FileService{pipe: pipe, files: files, registry: registry, trigger: trigger, urlTTL: urlTTL}
}

// UploadInput 描述一次上传所需的信息。
type UploadInput struct {
	FileName   string
	Category   string
	FolderPath string
	SizeBytes  int64
	Backend    domain.StorageType
	Visibility domain.FileVisibility
	Reader     io.Reader
	// Sniff 是负载头部字节，供校验阶段嗅探 MIME。
	Sniff []byte
}

// Upload 执行上传流水线，成功后派发后置任务。
func (s *FileService) Upload(ctx context.Context, who Identity, input UploadInput) (*domain.ProcessResult, *domain.FileRecord) {
	req := &domain.ProcessContext{
		Operation:  domain.OperationUpload,
		TenantID:   who.TenantID,
		ActorID:    who.ActorID,
		ActorRole:  who.Role,
		TraceID:    uuid.NewString(),
		FileID:     uuid.NewString(),
		FileName:   input.FileName,
		Category:   input.Category,
		FolderPath: input.FolderPath,
		SizeBytes:  input.SizeBytes,
		Backend:    input.Backend,
		Visibility: input.Visibility,
		Payload:    input.Reader,
		Sniff:      input.Sniff,
	}

	exec := pipeline.NewExecution(req)
	result := s.pipe.Run(ctx, exec)

	if result.Success && s.trigger != nil && exec.Record != nil {
		s.trigger.OnUploaded(exec.Record, req.TraceID)
	}

	return result, exec.Record
}

// View 执行查看流水线，返回更新后的元数据。
func (s *FileService) View(ctx context.Context, who Identity, fileID string) (*domain.ProcessResult, *domain.FileRecord) {
	exec := pipeline.NewExecution(s.buildContext(domain.OperationView, who, fileID))
	result := s.pipe.Run(ctx, exec)
	return result, exec.Record
}

// Download 执行下载流水线，成功时返回内容流，调用方负责关闭。
func (s *FileService) Download(ctx context.Context, who Identity, fileID string) (*domain.ProcessResult, *domain.FileRecord, io.ReadCloser) {
	exec := pipeline.NewExecution(s.buildContext(domain.OperationDownload, who, fileID))
	result := s.pipe.Run(ctx, exec)
	return result, exec.Record, exec.Output
}

// Delete 执行删除流水线（软删除元数据 + 物理删除字节）。
func (s *FileService) Delete(ctx context.Context, who Identity, fileID string) *domain.ProcessResult {
	return s.pipe.Run(ctx, pipeline.NewExecution(s.buildContext(domain.OperationDelete, who, fileID)))
}

// ModifyVisibility 执行改权限流水线。
func (s *FileService) ModifyVisibility(ctx context.Context, who Identity, fileID string, vis domain.FileVisibility, reason string) (*domain.ProcessResult, *domain.FileRecord) {
	req := s.buildContext(domain.OperationModifyPermissions, who, fileID)
	req.Visibility = vis
	if reason != "" {
		req.Attributes = map[string]string{"reason": reason}
	}

	exec := pipeline.NewExecution(req)
	result := s.pipe.Run(ctx, exec)
	return result, exec.Record
}

// List 以分页形式列出租户文件，不走流水线（只读聚合查询）。
func (s *FileService) List(ctx context.Context, who Identity, params repository.ListFilesParams) ([]domain.FileRecord, error) {
	if s == nil || s.files == nil {
		return nil, errors.New("file service not initialized")
	}
	return s.files.List(ctx, who.TenantID, params)
}

// AccessURL 为已放行的查看请求生成带时效的访问地址。
func (s *FileService) AccessURL(ctx context.Context, record *domain.FileRecord) (string, error) {
	adapter, err := s.registry.Resolve(record.Backend)
	if err != nil {
		return "", err
	}
	return adapter.AccessURL(ctx, record.Location(), s.urlTTL)
}

func (s *FileService) buildContext(op domain.FileOperation, who Identity, fileID string) *domain.ProcessContext {
	return &domain.ProcessContext{
		Operation: op,
		TenantID:  who.TenantID,
		ActorID:   who.ActorID,
		ActorRole: who.Role,
		TraceID:   uuid.NewString(),
		FileID:    fileID,
	}
}
