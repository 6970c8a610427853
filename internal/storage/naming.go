package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// prefixNaming 是各后端共用的命名骨架：固定桶前缀 + 按日期分层的对象键。
type prefixNaming struct {
	bucketPrefix string
	// singleBucket 非空时所有租户共用一个桶，租户体现在键前缀里（本地盘等场景）。
	singleBucket string
	now          func() time.Time
}

func (n prefixNaming) BucketName(tenantID string) string {
	if n.singleBucket != "" {
		return n.singleBucket
	}
	return n.bucketPrefix + "-" + sanitizeSegment(tenantID)
}

func (n prefixNaming) ObjectKey(tenantID, category, fileID, fileName string) string {
	ts := n.now().UTC()
	if category == "" {
		category = "general"
	}
	return path.Join(
		sanitizeSegment(tenantID),
		fmt.Sprintf("%04d/%02d", ts.Year(), int(ts.Month())),
		sanitizeSegment(category),
		fileID,
		sanitizeSegment(fileName),
	)
}

// sanitizeSegment 清理路径片段，防止目录穿越与非法桶字符。
func sanitizeSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "..", "")
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "_")
	s = replacer.Replace(s)
	if s == "" {
		return "unnamed"
	}
	return s
}

// NewLocalNaming 本地盘命名：单一根目录，租户做键前缀。
func NewLocalNaming(rootBucket string) NamingStrategy {
	return prefixNaming{singleBucket: rootBucket, now: time.Now}
}

// NewMinIONaming MinIO 命名：每租户一个桶。
func NewMinIONaming(bucketPrefix string) NamingStrategy {
	return prefixNaming{bucketPrefix: bucketPrefix, now: time.Now}
}

// NewOSSNaming 云 OSS 命名：共享桶 + 租户键前缀，桶名由运维侧预建。
func NewOSSNaming(bucket string) NamingStrategy {
	return prefixNaming{singleBucket: bucket, now: time.Now}
}

// NewS3Naming 云 S3 命名：共享桶 + 租户键前缀。
func NewS3Naming(bucket string) NamingStrategy {
	return prefixNaming{singleBucket: bucket, now: time.Now}
}
