package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

// NewAuditRepository 返回基于 *sql.DB 的审计存储实现。
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditRepository 实现 repository.AuditRepository。
// 表是只追加的，seq 由 BIGSERIAL 分配，天然保证单文件内写入顺序。
type AuditRepository struct {
	db *sql.DB
}

var auditSelectColumns = []string{
	"seq",
	"id",
	"file_id",
	"tenant_id",
	"actor_id",
	"operation",
	"result",
	"old_visibility",
	"new_visibility",
	"reason",
	"occurred_at",
	"recorded_at",
}

// Append 追加一条审计记录。
func (r *AuditRepository) Append(ctx context.Context, record *domain.AuditRecord) error {
	if record == nil {
		return fmt.Errorf("audit record is nil")
	}

	query := `INSERT INTO file_audits
	(id, file_id, tenant_id, actor_id, operation, result, old_visibility, new_visibility, reason, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING seq, recorded_at`

	var oldVis, newVis sql.NullString
	if record.OldVis != nil {
		oldVis = sql.NullString{String: string(*record.OldVis), Valid: true}
	}
	if record.NewVis != nil {
		newVis = sql.NullString{String: string(*record.NewVis), Valid: true}
	}

	return r.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.FileID,
		record.TenantID,
		record.ActorID,
		record.Operation,
		record.Result,
		oldVis,
		newVis,
		record.Reason,
		record.OccurredAt,
	).Scan(&record.Seq, &record.RecordedAt)
}

// ListByFile 按时间倒序返回某文件最近的审计记录。
func (r *AuditRepository) ListByFile(ctx context.Context, fileID string, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM file_audits
	WHERE file_id = $1
	ORDER BY occurred_at DESC, seq DESC
	LIMIT $2`, strings.Join(auditSelectColumns, ","))

	rows, err := r.db.QueryContext(ctx, query, fileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	return result, rows.Err()
}

// CountVisibilityChangesSince 统计 since 之后的可见性变更次数。
func (r *AuditRepository) CountVisibilityChangesSince(ctx context.Context, fileID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM file_audits
	WHERE file_id = $1 AND operation = $2 AND result = $3 AND occurred_at >= $4`

	var count int
	err := r.db.QueryRowContext(ctx, query, fileID, domain.OperationModifyPermissions, domain.AccessAllowed, since).Scan(&count)
	return count, err
}

// AccessStatsSince 统计 since 之后的放行/拒绝次数。
func (r *AuditRepository) AccessStatsSince(ctx context.Context, fileID string, since time.Time) (repository.AccessStats, error) {
	query := `SELECT
	COUNT(*) FILTER (WHERE result = $1),
	COUNT(*) FILTER (WHERE result = $2)
	FROM file_audits WHERE file_id = $3 AND occurred_at >= $4`

	var stats repository.AccessStats
	err := r.db.QueryRowContext(ctx, query, domain.AccessAllowed, domain.AccessDenied, fileID, since).
		Scan(&stats.Allowed, &stats.Denied)
	return stats, err
}

// CountDistinctActorsSince 统计 since 之后触碰过该文件的不同操作者数。
func (r *AuditRepository) CountDistinctActorsSince(ctx context.Context, fileID string, since time.Time) (int, error) {
	query := `SELECT COUNT(DISTINCT actor_id) FROM file_audits
	WHERE file_id = $1 AND occurred_at >= $2`

	var count int
	err := r.db.QueryRowContext(ctx, query, fileID, since).Scan(&count)
	return count, err
}

// ActorOperationStats 统计某操作者在 since 之后各操作的次数。
func (r *AuditRepository) ActorOperationStats(ctx context.Context, actorID string, since time.Time) (map[domain.FileOperation]int, error) {
	query := `SELECT operation, COUNT(*) FROM file_audits
	WHERE actor_id = $1 AND occurred_at >= $2
	GROUP BY operation`

	rows, err := r.db.QueryContext(ctx, query, actorID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[domain.FileOperation]int)
	for rows.Next() {
		var op domain.FileOperation
		var count int
		if err := rows.Scan(&op, &count); err != nil {
			return nil, err
		}
		stats[op] = count
	}

	return stats, rows.Err()
}

// DeleteOlderThan 删除早于 cutoff 的记录，返回删除行数。
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM file_audits WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanAuditRecord(rs rowScanner) (*domain.AuditRecord, error) {
	var (
		rec    domain.AuditRecord
		oldVis sql.NullString
		newVis sql.NullString
	)

	if err := rs.Scan(
		&rec.Seq,
		&rec.ID,
		&rec.FileID,
		&rec.TenantID,
		&rec.ActorID,
		&rec.Operation,
		&rec.Result,
		&oldVis,
		&newVis,
		&rec.Reason,
		&rec.OccurredAt,
		&rec.RecordedAt,
	); err != nil {
		return nil, err
	}

	if oldVis.Valid {
		vis := domain.FileVisibility(oldVis.String)
		rec.OldVis = &vis
	}
	if newVis.Valid {
		vis := domain.FileVisibility(newVis.String)
		rec.NewVis = &vis
	}

	return &rec, nil
}
