package storage

import (
	"context"
	"io"
	"time"

	"familyvault/internal/domain"
)

// Adapter 是单个物理后端的存储接口。每个实现只持有一种后端的 SDK 客户端，
// 路径/桶命名交给配对的 NamingStrategy，传输代码不关心命名规则。
type Adapter interface {
	// Type 返回适配器负责的后端类型。
	Type() domain.StorageType
	// Put 将负载流式写入指定位置。I/O 错误必须显式上报，不得吞掉。
	Put(ctx context.Context, loc domain.StorageLocation, r io.Reader, size int64, contentType string) error
	// Get 打开指定位置的读取流，对象不存在返回 ErrObjectNotFound。
	Get(ctx context.Context, loc domain.StorageLocation) (io.ReadCloser, error)
	// Delete 删除指定位置的对象，对象不存在视为成功。
	Delete(ctx context.Context, loc domain.StorageLocation) error
	// Healthy 检查后端可达性。健康失败与鉴权失败要能区分，
	// 前者可换后端重试，后者应整体失败。
	Healthy(ctx context.Context) error
	// AccessURL 生成带时效的访问地址。
	AccessURL(ctx context.Context, loc domain.StorageLocation, ttl time.Duration) (string, error)
}

// NamingStrategy 是 (租户, 文件分类) 到桶名与对象键的纯函数映射。
// 与适配器解耦，命名规则演进不影响传输实现。
type NamingStrategy interface {
	// BucketName 返回租户对应的桶/容器名。
	BucketName(tenantID string) string
	// ObjectKey 返回对象键，约定为 tenant/yyyy/MM/category/fileID/fileName。
	ObjectKey(tenantID, category, fileID, fileName string) string
}
