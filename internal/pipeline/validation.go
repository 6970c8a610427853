package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"familyvault/internal/domain"
)

// ValidationConfig 是校验阶段的规则参数。
type ValidationConfig struct {
	MaxSizeBytes int64
	// BlockedMIMEPrefixes 拒绝的 MIME 前缀（可执行文件等）。
	BlockedMIMEPrefixes []string
}

// DefaultBlockedMIMEPrefixes 默认拒绝可执行类负载。
func DefaultBlockedMIMEPrefixes() []string {
	return []string{
		"application/x-msdownload",
		"application/x-executable",
		"application/x-elf",
		"application/x-mach-binary",
		"application/vnd.microsoft.portable-executable",
	}
}

// ValidationStage 在任何 I/O 之前完成必填字段、大小、类型、文件名检查。
type ValidationStage struct {
	cfg      ValidationConfig
	validate *validator.Validate
}

func NewValidationStage(cfg ValidationConfig) *ValidationStage {
	return &ValidationStage{cfg: cfg, validate: validator.New()}
}

func (s *ValidationStage) Name() string { return "validation" }

func (s *ValidationStage) Run(ctx context.Context, exec *Execution) error {
	req := exec.Request

	if err := s.validate.Struct(req); err != nil {
		return domain.WrapError(domain.CodeValidation, "missing required fields", err)
	}
	if !req.Operation.Valid() {
		return domain.NewError(domain.CodeValidation, fmt.Sprintf("unknown operation %q", req.Operation))
	}

	switch req.Operation {
	case domain.OperationUpload:
		return s.validateUpload(exec)
	case domain.OperationView, domain.OperationDownload, domain.OperationDelete:
		if req.FileID == "" {
			return domain.NewError(domain.CodeValidation, "file id is required")
		}
	case domain.OperationModifyPermissions:
		if req.FileID == "" {
			return domain.NewError(domain.CodeValidation, "file id is required")
		}
		if !req.Visibility.Valid() {
			return domain.NewError(domain.CodeValidation,
				fmt.Sprintf("invalid target visibility %q", req.Visibility))
		}
	}

	return nil
}

func (s *ValidationStage) validateUpload(exec *Execution) error {
	req := exec.Request

	name := strings.TrimSpace(req.FileName)
	switch {
	case name == "":
		return domain.NewError(domain.CodeValidation, "file name is required")
	case strings.Contains(name, ".."), strings.ContainsAny(name, `/\`):
		return domain.NewError(domain.CodeValidation, "file name must not contain path separators")
	}

	if req.Payload == nil {
		return domain.NewError(domain.CodeValidation, "upload payload is required")
	}
	if req.SizeBytes <= 0 {
		return domain.NewError(domain.CodeValidation, "file must not be empty")
	}
	if s.cfg.MaxSizeBytes > 0 && req.SizeBytes > s.cfg.MaxSizeBytes {
		return domain.NewError(domain.CodeValidation,
			fmt.Sprintf("file exceeds size limit (%d bytes)", s.cfg.MaxSizeBytes))
	}

	if req.Backend != "" && !req.Backend.Valid() {
		return domain.NewError(domain.CodeValidation,
			fmt.Sprintf("unknown storage backend %q", req.Backend))
	}

	// 用头部字节嗅探权威 MIME，不信任客户端声明
	detected := mimetype.Detect(req.Sniff).String()
	for _, blocked := range s.cfg.BlockedMIMEPrefixes {
		if strings.HasPrefix(detected, blocked) {
			return domain.NewError(domain.CodeValidation,
				fmt.Sprintf("file type %s is not allowed", detected))
		}
	}
	exec.MimeType = detected

	return nil
}
