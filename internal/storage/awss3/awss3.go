package awss3

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"familyvault/internal/domain"
	"familyvault/internal/storage"
)

// Config 包含云 S3 所需的配置。
type Config struct {
	Region    string
	AccessKey string
	SecretKey string
}

// Adapter 基于 AWS SDK 实现云 S3 的 storage.Adapter。
// 上传走 s3manager，自动处理分片。
type Adapter struct {
	client   *s3.S3
	uploader *s3manager.Uploader
}

// New 创建新的云 S3 适配器。
func New(cfg Config) (*Adapter, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	return &Adapter{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (a *Adapter) Type() domain.StorageType {
	return domain.StorageCloudS3
}

// Put 将文件写入 S3。
func (a *Adapter) Put(ctx context.Context, loc domain.StorageLocation, r io.Reader, size int64, contentType string) error {
	if a == nil || a.uploader == nil {
		return fmt.Errorf("s3 adapter uninitialized")
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(cleanKey(loc.Key)),
		Body:        r,
		ContentType: aws.String(contentType),
	}); err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

// Get 从 S3 读取文件。
func (a *Adapter) Get(ctx context.Context, loc domain.StorageLocation) (io.ReadCloser, error) {
	if a == nil || a.client == nil {
		return nil, fmt.Errorf("s3 adapter uninitialized")
	}

	out, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(cleanKey(loc.Key)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
				return nil, storage.ErrObjectNotFound
			}
		}
		return nil, fmt.Errorf("get object: %w", err)
	}

	return out.Body, nil
}

// Delete 从 S3 删除文件。
func (a *Adapter) Delete(ctx context.Context, loc domain.StorageLocation) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("s3 adapter uninitialized")
	}

	if _, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(cleanKey(loc.Key)),
	}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Healthy 探测 S3 可达性。
func (a *Adapter) Healthy(ctx context.Context) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("s3 adapter uninitialized")
	}
	if _, err := a.client.ListBucketsWithContext(ctx, &s3.ListBucketsInput{}); err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	return nil
}

// AccessURL 生成预签名下载地址。
func (a *Adapter) AccessURL(ctx context.Context, loc domain.StorageLocation, ttl time.Duration) (string, error) {
	if a == nil || a.client == nil {
		return "", fmt.Errorf("s3 adapter uninitialized")
	}

	req, _ := a.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(cleanKey(loc.Key)),
	})
	u, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u, nil
}

func cleanKey(key string) string {
	return filepath.ToSlash(filepath.Clean(key))
}
