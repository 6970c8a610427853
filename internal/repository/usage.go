package repository

import "context"

// TenantUsage 是租户级存储用量计数。
type TenantUsage struct {
	TenantID  string `json:"tenant_id"`
	UsedBytes int64  `json:"used_bytes"`
	FileCount int64  `json:"file_count"`
}

// UsageRepository 维护租户存储用量计数，上传加、删除减。
type UsageRepository interface {
	// AddUsage 以增量方式调整用量，bytes 与 files 可为负。
	AddUsage(ctx context.Context, tenantID string, bytes int64, files int64) error
	// GetUsage 返回当前用量，租户无记录时返回零值。
	GetUsage(ctx context.Context, tenantID string) (TenantUsage, error)
}
