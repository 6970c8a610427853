package oss

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"familyvault/internal/domain"
	"familyvault/internal/storage"
)

// Config 包含云 OSS 所需的配置。走 OSS 的 S3 兼容端点，
// 如 "oss-cn-hangzhou.aliyuncs.com"，桶由运维侧预建。
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
}

// Adapter 基于 S3 兼容协议实现云 OSS 的 storage.Adapter。
// 与 MinIO 适配器的差别：桶必须预建（云上建桶是管控面操作），
// 且统一走 HTTPS。
type Adapter struct {
	client *minio.Client
}

// New 创建新的云 OSS 适配器。
func New(cfg Config) (*Adapter, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: true,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create oss client: %w", err)
	}

	return &Adapter{client: client}, nil
}

func (a *Adapter) Type() domain.StorageType {
	return domain.StorageCloudOSS
}

// Put 将文件写入 OSS。桶不存在直接报错，不尝试创建。
func (a *Adapter) Put(ctx context.Context, loc domain.StorageLocation, r io.Reader, size int64, contentType string) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("oss adapter uninitialized")
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if size <= 0 {
		size = -1
	}

	if _, err := a.client.PutObject(ctx, loc.Bucket, cleanKey(loc.Key), r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// Get 从 OSS 读取文件。
func (a *Adapter) Get(ctx context.Context, loc domain.StorageLocation) (io.ReadCloser, error) {
	if a == nil || a.client == nil {
		return nil, fmt.Errorf("oss adapter uninitialized")
	}

	obj, err := a.client.GetObject(ctx, loc.Bucket, cleanKey(loc.Key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}

	if _, err := obj.Stat(); err != nil {
		obj.Close()
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	return obj, nil
}

// Delete 从 OSS 删除文件。
func (a *Adapter) Delete(ctx context.Context, loc domain.StorageLocation) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("oss adapter uninitialized")
	}
	if err := a.client.RemoveObject(ctx, loc.Bucket, cleanKey(loc.Key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Healthy 探测 OSS 端点可达性。
func (a *Adapter) Healthy(ctx context.Context) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("oss adapter uninitialized")
	}
	if _, err := a.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	return nil
}

// AccessURL 生成预签名下载地址。
func (a *Adapter) AccessURL(ctx context.Context, loc domain.StorageLocation, ttl time.Duration) (string, error) {
	if a == nil || a.client == nil {
		return "", fmt.Errorf("oss adapter uninitialized")
	}

	u, err := a.client.PresignedGetObject(ctx, loc.Bucket, cleanKey(loc.Key), ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

func cleanKey(key string) string {
	return filepath.ToSlash(filepath.Clean(key))
}
