package local

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"familyvault/internal/domain"
	"familyvault/internal/storage"
)

// Adapter 将文件写入本地文件系统，桶对应 BaseDir 下的一级目录。
type Adapter struct {
	BaseDir string
	BaseURL string
}

func New(baseDir, baseURL string) *Adapter {
	return &Adapter{BaseDir: baseDir, BaseURL: baseURL}
}

func (a *Adapter) Type() domain.StorageType {
	return domain.StorageLocal
}

// Put 先写临时文件再 rename，避免留下半截文件。
func (a *Adapter) Put(ctx context.Context, loc domain.StorageLocation, r io.Reader, size int64, contentType string) error {
	if a == nil {
		return fmt.Errorf("local adapter uninitialized")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	targetPath := a.targetPath(loc)
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}

	tempPath := targetPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Get 打开并返回指定位置的文件内容。
func (a *Adapter) Get(ctx context.Context, loc domain.StorageLocation) (io.ReadCloser, error) {
	if a == nil {
		return nil, fmt.Errorf("local adapter uninitialized")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	file, err := os.Open(a.targetPath(loc))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}

	return file, nil
}

// Delete 删除指定位置的文件，不存在视为成功。
func (a *Adapter) Delete(ctx context.Context, loc domain.StorageLocation) error {
	if a == nil {
		return fmt.Errorf("local adapter uninitialized")
	}

	err := os.Remove(a.targetPath(loc))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// Healthy 确认根目录可写。
func (a *Adapter) Healthy(ctx context.Context) error {
	info, err := os.Stat(a.BaseDir)
	if err != nil {
		return fmt.Errorf("stat base dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("base dir %s is not a directory", a.BaseDir)
	}
	return nil
}

// AccessURL 基于配置的 BaseURL 拼出静态访问地址，本地盘不支持时效控制。
func (a *Adapter) AccessURL(ctx context.Context, loc domain.StorageLocation, ttl time.Duration) (string, error) {
	if a.BaseURL == "" {
		return "", fmt.Errorf("local adapter has no base url configured")
	}
	return url.JoinPath(a.BaseURL, loc.Bucket, filepath.ToSlash(loc.Key))
}

func (a *Adapter) targetPath(loc domain.StorageLocation) string {
	return filepath.Join(a.BaseDir, filepath.Clean(loc.Bucket), filepath.Clean(loc.Key))
}
