package pipeline

import (
	"context"
	"errors"

	"familyvault/internal/domain"
	"familyvault/internal/storage"
)

// StorageStage 通过注册表解析适配器并执行与操作类型对应的物理 I/O。
// 查看与改权限是纯元数据操作，不触碰字节。
type StorageStage struct {
	registry       *storage.Registry
	defaultBackend domain.StorageType
}

func NewStorageStage(registry *storage.Registry, defaultBackend domain.StorageType) *StorageStage {
	return &StorageStage{registry: registry, defaultBackend: defaultBackend}
}

func (s *StorageStage) Name() string { return "storage" }

func (s *StorageStage) Run(ctx context.Context, exec *Execution) error {
	req := exec.Request

	switch req.Operation {
	case domain.OperationUpload:
		return s.put(ctx, exec)
	case domain.OperationDownload:
		return s.open(ctx, exec)
	case domain.OperationDelete:
		return s.remove(ctx, exec)
	case domain.OperationView, domain.OperationModifyPermissions:
		return nil
	}
	return domain.NewError(domain.CodeValidation, "unknown operation")
}

func (s *StorageStage) put(ctx context.Context, exec *Execution) error {
	req := exec.Request

	backend := req.Backend
	if backend == "" {
		backend = s.defaultBackend
	}

	adapter, err := s.registry.Resolve(backend)
	if err != nil {
		return err
	}
	naming, err := s.registry.Naming(backend)
	if err != nil {
		return err
	}

	loc := domain.StorageLocation{
		Backend: backend,
		Bucket:  naming.BucketName(req.TenantID),
		Key:     naming.ObjectKey(req.TenantID, req.Category, req.FileID, req.FileName),
	}

	if err := adapter.Put(ctx, loc, req.Payload, req.SizeBytes, exec.MimeType); err != nil {
		return domain.WrapError(domain.CodeStorageUnavailable, "storage write failed", err)
	}

	exec.Location = loc
	// 写入已落盘，此后任何阶段失败都要把这份字节清掉
	exec.SetCompensation(func(cctx context.Context) error {
		return adapter.Delete(cctx, loc)
	})

	return nil
}

func (s *StorageStage) open(ctx context.Context, exec *Execution) error {
	record := exec.Record
	adapter, err := s.registry.Resolve(record.Backend)
	if err != nil {
		return err
	}

	rc, err := adapter.Get(ctx, record.Location())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return domain.NewError(domain.CodeNotFound, "file content not found in storage")
		}
		return domain.WrapError(domain.CodeStorageUnavailable, "storage read failed", err)
	}

	exec.Output = rc
	return nil
}

func (s *StorageStage) remove(ctx context.Context, exec *Execution) error {
	record := exec.Record
	adapter, err := s.registry.Resolve(record.Backend)
	if err != nil {
		return err
	}

	if err := adapter.Delete(ctx, record.Location()); err != nil {
		return domain.WrapError(domain.CodeStorageUnavailable, "storage delete failed", err)
	}
	return nil
}
