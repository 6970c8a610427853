package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familyvault/internal/domain"
)

type stubAdapter struct {
	t domain.StorageType
}

func (a stubAdapter) Type() domain.StorageType { return a.t }
func (a stubAdapter) Put(ctx context.Context, loc domain.StorageLocation, r io.Reader, size int64, contentType string) error {
	return nil
}
func (a stubAdapter) Get(ctx context.Context, loc domain.StorageLocation) (io.ReadCloser, error) {
	return nil, ErrObjectNotFound
}
func (a stubAdapter) Delete(ctx context.Context, loc domain.StorageLocation) error { return nil }
func (a stubAdapter) Healthy(ctx context.Context) error                            { return nil }
func (a stubAdapter) AccessURL(ctx context.Context, loc domain.StorageLocation, ttl time.Duration) (string, error) {
	return "", nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubAdapter{t: domain.StorageLocal}, NewLocalNaming("files")))

	adapter, err := registry.Resolve(domain.StorageLocal)
	require.NoError(t, err)
	assert.Equal(t, domain.StorageLocal, adapter.Type())

	naming, err := registry.Naming(domain.StorageLocal)
	require.NoError(t, err)
	assert.Equal(t, "files", naming.BucketName("fam-1"))
}

// 未注册的后端必须立即得到配置错误，而不是被静默跳过。
func TestRegistry_ResolveUnregisteredBackend(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Resolve(domain.StorageCloudS3)
	require.Error(t, err)

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.CodeConfiguration, derr.Code)

	_, err = registry.Naming(domain.StorageCloudS3)
	require.Error(t, err)
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.CodeConfiguration, derr.Code)
}

func TestRegistry_DuplicateRegistrationFails(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubAdapter{t: domain.StorageMinIO}, NewMinIONaming("familyvault")))
	require.Error(t, registry.Register(stubAdapter{t: domain.StorageMinIO}, NewMinIONaming("familyvault")))
}

func TestRegistry_RejectsInvalidRegistrations(t *testing.T) {
	registry := NewRegistry()
	assert.Error(t, registry.Register(nil, NewLocalNaming("files")))
	assert.Error(t, registry.Register(stubAdapter{t: domain.StorageLocal}, nil))
	assert.Error(t, registry.Register(stubAdapter{t: domain.StorageType("tape")}, NewLocalNaming("files")))
}

func TestRegistry_TypesListsRegisteredBackends(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubAdapter{t: domain.StorageLocal}, NewLocalNaming("files")))
	require.NoError(t, registry.Register(stubAdapter{t: domain.StorageMinIO}, NewMinIONaming("familyvault")))

	assert.ElementsMatch(t,
		[]domain.StorageType{domain.StorageLocal, domain.StorageMinIO},
		registry.Types())
}
