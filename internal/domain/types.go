package domain

import (
	"io"
	"time"
)

// FileOperation 标识一次文件请求的操作类型。
// 每种操作必须注册且仅注册一个元数据策略。
type FileOperation string

const (
	OperationUpload            FileOperation = "upload"
	OperationView              FileOperation = "view"
	OperationDownload          FileOperation = "download"
	OperationDelete            FileOperation = "delete"
	OperationModifyPermissions FileOperation = "modify_permissions"
)

// AllOperations 返回全部已定义的操作，顺序固定。
func AllOperations() []FileOperation {
	return []FileOperation{
		OperationUpload,
		OperationView,
		OperationDownload,
		OperationDelete,
		OperationModifyPermissions,
	}
}

// Valid 判断操作是否为已定义变体。
func (op FileOperation) Valid() bool {
	switch op {
	case OperationUpload, OperationView, OperationDownload,
		OperationDelete, OperationModifyPermissions:
		return true
	}
	return false
}

// StorageType 标识物理存储后端。
// 每种后端必须注册且仅注册一个适配器和一个命名策略。
type StorageType string

const (
	StorageLocal    StorageType = "local"
	StorageMinIO    StorageType = "minio"
	StorageCloudOSS StorageType = "cloud_oss"
	StorageCloudS3  StorageType = "cloud_s3"
)

// Valid 判断后端类型是否为已定义变体。
func (t StorageType) Valid() bool {
	switch t {
	case StorageLocal, StorageMinIO, StorageCloudOSS, StorageCloudS3:
		return true
	}
	return false
}

// UserRole 标识请求方相对某个家庭（租户）的角色。
// 角色由身份协作方给出，核心不做认证。
type UserRole string

const (
	RoleOwner        UserRole = "owner"
	RoleFamilyMember UserRole = "family_member"
	RolePublicUser   UserRole = "public_user"
)

// FileVisibility 是文件的公开等级。
type FileVisibility string

const (
	VisibilityPrivate FileVisibility = "private"
	VisibilityFamily  FileVisibility = "family"
	VisibilityPublic  FileVisibility = "public"
)

// Rank 返回可见性的显式数值等级。
// 高低比较一律使用 Rank，不依赖常量声明顺序，便于将来插入新等级。
func (v FileVisibility) Rank() int {
	switch v {
	case VisibilityPrivate:
		return 10
	case VisibilityFamily:
		return 20
	case VisibilityPublic:
		return 100
	}
	return 0
}

// Valid 判断可见性是否为已定义变体。
func (v FileVisibility) Valid() bool {
	return v.Rank() > 0
}

// FileStatus 描述元数据记录的生命周期。删除为软删除，保留审计可查。
type FileStatus string

const (
	FileStatusStored  FileStatus = "stored"
	FileStatusDeleted FileStatus = "deleted"
)

// StorageLocation 描述文件在某个后端内的物理位置。
type StorageLocation struct {
	Backend StorageType `json:"backend"`
	Bucket  string      `json:"bucket"`
	Key     string      `json:"key"`
	URL     string      `json:"url,omitempty"`
}

// FileRecord 是文件元数据，由上传策略创建、查看/改权限策略更新、删除策略软删除。
// 持久化以 (tenant_id, id) 为命名空间键。
type FileRecord struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	OriginalName string         `json:"original_name"`
	Category     string         `json:"category"`
	FolderPath   string         `json:"folder_path"`
	MimeType     string         `json:"mime_type"`
	SizeBytes    int64          `json:"size_bytes"`
	Backend      StorageType    `json:"storage_backend"`
	Bucket       string         `json:"bucket"`
	StorageKey   string         `json:"storage_key"`
	UploaderID   string         `json:"uploader_id"`
	Visibility   FileVisibility `json:"visibility"`
	Tags         []string       `json:"tags"`
	Status       FileStatus     `json:"status"`
	AccessCount  int64          `json:"access_count"`
	LastAccessAt *time.Time     `json:"last_access_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Location 还原记录对应的存储位置。
func (r *FileRecord) Location() StorageLocation {
	return StorageLocation{Backend: r.Backend, Bucket: r.Bucket, Key: r.StorageKey}
}

// ProcessContext 是一次文件请求的输入，由入口层构造，构造后不再修改。
// 仅在单次流水线执行内使用，不做持久化。
type ProcessContext struct {
	Operation FileOperation `validate:"required"`
	TenantID  string        `validate:"required"`
	ActorID   string        `validate:"required"`
	ActorRole UserRole      `validate:"required"`
	TraceID   string        `validate:"required"`

	// FileID 除上传外必填，上传时由策略生成。
	FileID string

	// 以下字段仅上传时使用。
	FileName   string
	Category   string
	FolderPath string
	SizeBytes  int64
	Backend    StorageType
	Payload    io.Reader
	// Sniff 是负载头部字节，供校验阶段做 MIME 嗅探，避免消耗 Payload。
	Sniff []byte

	// Visibility 上传时为初始可见性，改权限时为目标可见性。
	Visibility FileVisibility

	Attributes map[string]string
}

// AccessResult 描述一次访问尝试的裁决结果。
type AccessResult string

const (
	AccessAllowed AccessResult = "allowed"
	AccessDenied  AccessResult = "denied"
)

// AuditRecord 是一条只追加的审计记录：访问尝试或可见性变更。
// Seq 在单个文件内单调递增，保证文件内审计顺序。
type AuditRecord struct {
	Seq        int64           `json:"seq"`
	ID         string          `json:"id"`
	FileID     string          `json:"file_id"`
	TenantID   string          `json:"tenant_id"`
	ActorID    string          `json:"actor_id"`
	Operation  FileOperation   `json:"operation"`
	Result     AccessResult    `json:"result"`
	OldVis     *FileVisibility `json:"old_visibility,omitempty"`
	NewVis     *FileVisibility `json:"new_visibility,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// RiskLevel 是风险评分的分档。
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskScore 是基于审计历史的启发式信号，仅用于告警，不参与访问控制。
type RiskScore struct {
	FileID  string    `json:"file_id"`
	Score   int       `json:"score"`
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors"`
}

// ProcessResult 是流水线及每个阶段返回的统一结果，创建后不再修改。
type ProcessResult struct {
	Success bool      `json:"success"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	FileID  string    `json:"file_id,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// OK 构造成功结果。
func OK(fileID, traceID, message string) *ProcessResult {
	return &ProcessResult{Success: true, FileID: fileID, TraceID: traceID, Message: message}
}

// Fail 从错误构造失败结果，保证对调用方暴露的是分类码而非后端原始错误文本。
func Fail(err error, fileID, traceID string) *ProcessResult {
	code, message := Classify(err)
	return &ProcessResult{
		Success: false,
		Code:    code,
		Message: message,
		FileID:  fileID,
		TraceID: traceID,
	}
}
