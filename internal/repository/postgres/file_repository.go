package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

// NewFileRepository 返回基于 *sql.DB 的 Postgres 实现。
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

// FileRepository 实现 repository.FileRepository。
type FileRepository struct {
	db *sql.DB
}

var fileSelectColumns = []string{
	"id",
	"tenant_id",
	"original_name",
	"category",
	"folder_path",
	"mime_type",
	"size_bytes",
	"storage_backend",
	"bucket",
	"storage_key",
	"uploader_id",
	"visibility",
	"tags",
	"status",
	"access_count",
	"last_access_at",
	"created_at",
	"updated_at",
}

var fileInsertColumns = []string{
	"id",
	"tenant_id",
	"original_name",
	"category",
	"folder_path",
	"mime_type",
	"size_bytes",
	"storage_backend",
	"bucket",
	"storage_key",
	"uploader_id",
	"visibility",
	"tags",
	"status",
}

// Create 插入文件记录并返回数据库生成字段（如时间戳）。
func (r *FileRepository) Create(ctx context.Context, record *domain.FileRecord) (*domain.FileRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("file record is nil")
	}

	tagsBytes, err := encodeTags(record.Tags)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(fileInsertColumns))
	for i := range fileInsertColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO files (%s)
	VALUES (%s)
	RETURNING %s`,
		strings.Join(fileInsertColumns, ","),
		strings.Join(placeholders, ","),
		strings.Join(fileSelectColumns, ","),
	)

	row := r.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.TenantID,
		record.OriginalName,
		record.Category,
		record.FolderPath,
		record.MimeType,
		record.SizeBytes,
		record.Backend,
		record.Bucket,
		record.StorageKey,
		record.UploaderID,
		record.Visibility,
		tagsBytes,
		record.Status,
	)

	return scanFileRecord(row)
}

// GetByID 在租户命名空间内按主键查询文件记录。
func (r *FileRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE tenant_id = $1 AND id = $2`,
		strings.Join(fileSelectColumns, ","))
	row := r.db.QueryRowContext(ctx, query, tenantID, id)
	file, err := scanFileRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// List 支持按状态、可见性、分类过滤并分页。
func (r *FileRepository) List(ctx context.Context, tenantID string, params repository.ListFilesParams) ([]domain.FileRecord, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	args := []any{tenantID}
	conditions := []string{"tenant_id = $1"}

	if len(params.Statuses) > 0 {
		placeholders := make([]string, len(params.Statuses))
		for i, status := range params.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ",")+")")
	} else {
		// 默认排除已删除的文件
		args = append(args, domain.FileStatusDeleted)
		conditions = append(conditions, fmt.Sprintf("status != $%d", len(args)))
	}

	if len(params.Visibilities) > 0 {
		placeholders := make([]string, len(params.Visibilities))
		for i, vis := range params.Visibilities {
			args = append(args, vis)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, "visibility IN ("+strings.Join(placeholders, ",")+")")
	}

	if params.Category != "" {
		args = append(args, params.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}

	args = append(args, limit)
	tail := fmt.Sprintf("ORDER BY created_at DESC LIMIT $%d", len(args))

	if params.Offset > 0 {
		args = append(args, params.Offset)
		tail += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	query := fmt.Sprintf(`SELECT %s FROM files WHERE %s %s`,
		strings.Join(fileSelectColumns, ","),
		strings.Join(conditions, " AND "),
		tail,
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateStatus 更新文件状态。
func (r *FileRepository) UpdateStatus(ctx context.Context, tenantID, id string, status domain.FileStatus) error {
	query := `UPDATE files SET status = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4`
	return r.execExpectingRow(ctx, query, status, time.Now().UTC(), tenantID, id)
}

// UpdateVisibility 写入新的可见性等级。
func (r *FileRepository) UpdateVisibility(ctx context.Context, tenantID, id string, vis domain.FileVisibility) error {
	query := `UPDATE files SET visibility = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4`
	return r.execExpectingRow(ctx, query, vis, time.Now().UTC(), tenantID, id)
}

// IncrementAccess 访问计数加一并刷新最近访问时间，返回更新后的记录。
func (r *FileRepository) IncrementAccess(ctx context.Context, tenantID, id string) (*domain.FileRecord, error) {
	query := fmt.Sprintf(`UPDATE files
	SET access_count = access_count + 1, last_access_at = $1, updated_at = $1
	WHERE tenant_id = $2 AND id = $3
	RETURNING %s`, strings.Join(fileSelectColumns, ","))

	row := r.db.QueryRowContext(ctx, query, time.Now().UTC(), tenantID, id)
	rec, err := scanFileRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *FileRepository) execExpectingRow(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(rs rowScanner) (*domain.FileRecord, error) {
	var (
		rec          domain.FileRecord
		tags         []byte
		lastAccessAt sql.NullTime
	)

	if err := rs.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.OriginalName,
		&rec.Category,
		&rec.FolderPath,
		&rec.MimeType,
		&rec.SizeBytes,
		&rec.Backend,
		&rec.Bucket,
		&rec.StorageKey,
		&rec.UploaderID,
		&rec.Visibility,
		&tags,
		&rec.Status,
		&rec.AccessCount,
		&lastAccessAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if lastAccessAt.Valid {
		rec.LastAccessAt = &lastAccessAt.Time
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &rec.Tags); err != nil {
			return nil, err
		}
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	return &rec, nil
}

func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}
