package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_DomainError(t *testing.T) {
	err := NewError(CodeQuotaExceeded, "tenant storage quota exceeded")
	code, message := Classify(err)
	assert.Equal(t, CodeQuotaExceeded, code)
	assert.Equal(t, "tenant storage quota exceeded", message)
}

func TestClassify_WrappedDomainError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("stage failed: %w", WrapError(CodeStorageUnavailable, "storage write failed", cause))

	code, message := Classify(err)
	assert.Equal(t, CodeStorageUnavailable, code)
	assert.Equal(t, "storage write failed", message)
}

// 未分类错误的对外消息必须是固定文案，不泄漏后端细节。
func TestClassify_UnknownError(t *testing.T) {
	code, message := Classify(errors.New("pq: duplicate key value violates unique constraint"))
	assert.Equal(t, CodeInternal, code)
	assert.Equal(t, "internal error", message)
}

func TestWrapError_PreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(CodeStorageUnavailable, "storage write failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, CodeValidation.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, CodePermissionDenied.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, CodeNotFound.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, CodeStorageUnavailable.HTTPStatus())
	assert.Equal(t, http.StatusInsufficientStorage, CodeQuotaExceeded.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodeConfiguration.HTTPStatus())
}
