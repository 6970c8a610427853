package postgres

import (
	"context"
	"database/sql"

	"familyvault/internal/repository"
)

// NewUsageRepository 返回基于 *sql.DB 的租户用量实现。
func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// UsageRepository 实现 repository.UsageRepository。
type UsageRepository struct {
	db *sql.DB
}

// AddUsage 以 upsert 方式调整租户用量计数。
func (r *UsageRepository) AddUsage(ctx context.Context, tenantID string, bytes int64, files int64) error {
	query := `INSERT INTO tenant_usage (tenant_id, used_bytes, file_count, updated_at)
	VALUES ($1, GREATEST($2, 0), GREATEST($3, 0), NOW())
	ON CONFLICT (tenant_id) DO UPDATE SET
		used_bytes = GREATEST(tenant_usage.used_bytes + $2, 0),
		file_count = GREATEST(tenant_usage.file_count + $3, 0),
		updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query, tenantID, bytes, files)
	return err
}

// GetUsage 返回租户当前用量，无记录时返回零值。
func (r *UsageRepository) GetUsage(ctx context.Context, tenantID string) (repository.TenantUsage, error) {
	usage := repository.TenantUsage{TenantID: tenantID}

	query := `SELECT used_bytes, file_count FROM tenant_usage WHERE tenant_id = $1`
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&usage.UsedBytes, &usage.FileCount)
	if err == sql.ErrNoRows {
		return usage, nil
	}
	return usage, err
}
