package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 是对调用方可见的错误分类。
// 调用方依据分类决定重试与否，后端原始错误文本不透传。
type ErrorCode string

const (
	// CodeValidation 输入非法，不应重试。
	CodeValidation ErrorCode = "VALIDATION_FAILED"
	// CodePermissionDenied 策略拒绝，同时会被审计。
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	// CodeNotFound 目标文件不存在或已删除。
	CodeNotFound ErrorCode = "FILE_NOT_FOUND"
	// CodeStorageUnavailable 后端 I/O 失败，调用方可退避重试。
	CodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	// CodeMetadataConflict 存储写入成功后记账失败，已触发补偿清理。
	CodeMetadataConflict ErrorCode = "METADATA_CONFLICT"
	// CodeQuotaExceeded 租户配额不足。
	CodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	// CodeConfiguration 缺少适配器/策略映射，属运维错误，不可重试。
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// CodeInternal 未分类的内部错误。
	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatus 返回分类对应的 HTTP 状态码。
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeQuotaExceeded:
		return http.StatusInsufficientStorage
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case CodeMetadataConflict, CodeConfiguration, CodeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Error 携带分类码与面向用户的消息，内部原因通过 Unwrap 保留。
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError 构造不带内部原因的分类错误。
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError 构造包裹内部原因的分类错误。
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Classify 提取错误分类与对外消息。未分类错误一律按内部错误处理，
// 消息固定，避免泄漏堆栈或后端细节。
func Classify(err error) (ErrorCode, string) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, de.Message
	}
	return CodeInternal, "internal error"
}
