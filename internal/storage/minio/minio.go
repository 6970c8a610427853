package minio

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

// Config 包含 MinIO/S3 兼容存储所需的配置。
type Config struct {
	Endpoint  string // 不含协议，如 "localhost:9000"
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool // 是否使用 HTTPS
}

// Adapter 基于 MinIO 客户端实现 storage.Adapter。
// 桶按租户惰性创建（命名策略给出桶名，首次写入时确保存在）。
type Adapter struct {
	client *minio.Client
	region string
}

// New 创建新的 MinIO 适配器。
func New(cfg Config) (*Adapter, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Adapter{client: client, region: cfg.Region}, nil
}

func (a *Adapter) Type() domain.StorageType {
	return domain.StorageMinIO
}

// Put 将文件写入 MinIO，桶不存在则先创建。
func (a *Adapter) Put(ctx context.Context, loc domain.StorageLocation, r io.Reader, size int64, contentType string) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("minio adapter uninitialized")
	}

	if err := a.ensureBucket(ctx, loc.Bucket); err != nil {
		return err
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if size <= 0 {
		// -1 表示未知大小，由 SDK 分片处理
		size = -1
	}

	if _, err := a.client.PutObject(ctx, loc.Bucket, cleanKey(loc.Key), r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

// Get 从 MinIO 读取文件。
func (a *Adapter) Get(ctx context.Context, loc domain.StorageLocation) (io.ReadCloser, error) {
	if a == nil || a.client == nil {
		return nil, fmt.Errorf("minio adapter uninitialized")
	}

	obj, err := a.client.GetObject(ctx, loc.Bucket, cleanKey(loc.Key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}

	// GetObject 是惰性的，通过 Stat 验证对象确实存在
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	return obj, nil
}

// Delete 从 MinIO 删除文件。
func (a *Adapter) Delete(ctx context.Context, loc domain.StorageLocation) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("minio adapter uninitialized")
	}

	if err := a.client.RemoveObject(ctx, loc.Bucket, cleanKey(loc.Key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Healthy 通过列桶权限探测后端可达性。
func (a *Adapter) Healthy(ctx context.Context) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("minio adapter uninitialized")
	}
	if _, err := a.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	return nil
}

// AccessURL 生成预签名下载地址。
func (a *Adapter) AccessURL(ctx context.Context, loc domain.StorageLocation, ttl time.Duration) (string, error) {
	if a == nil || a.client == nil {
		return "", fmt.Errorf("minio adapter uninitialized")
	}

	u, err := a.client.PresignedGetObject(ctx, loc.Bucket, cleanKey(loc.Key), ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

func (a *Adapter) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := a.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func cleanKey(key string) string {
	return filepath.ToSlash(filepath.Clean(key))
}
