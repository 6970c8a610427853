package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
)

type mockFileRepo struct {
	records map[string]*domain.FileRecord

	created          *domain.FileRecord
	createErr        error
	updatedStatus    domain.FileStatus
	updatedVis       domain.FileVisibility
	updateVisErr     error
	incrementedID    string
	incrementErr     error
	incrementedCount int64
}

func newMockFileRepo() *mockFileRepo {
	return &mockFileRepo{records: make(map[string]*domain.FileRecord)}
}

func (m *mockFileRepo) Create(ctx context.Context, record *domain.FileRecord) (*domain.FileRecord, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = record
	m.records[record.ID] = record
	return record, nil
}

func (m *mockFileRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.FileRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (m *mockFileRepo) List(ctx context.Context, tenantID string, params repository.ListFilesParams) ([]domain.FileRecord, error) {
	return nil, nil
}

func (m *mockFileRepo) UpdateStatus(ctx context.Context, tenantID, id string, status domain.FileStatus) error {
	if _, ok := m.records[id]; !ok {
		return repository.ErrNotFound
	}
	m.updatedStatus = status
	m.records[id].Status = status
	return nil
}

func (m *mockFileRepo) UpdateVisibility(ctx context.Context, tenantID, id string, vis domain.FileVisibility) error {
	if m.updateVisErr != nil {
		return m.updateVisErr
	}
	if _, ok := m.records[id]; !ok {
		return repository.ErrNotFound
	}
	m.updatedVis = vis
	m.records[id].Visibility = vis
	return nil
}

func (m *mockFileRepo) IncrementAccess(ctx context.Context, tenantID, id string) (*domain.FileRecord, error) {
	if m.incrementErr != nil {
		return nil, m.incrementErr
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m.incrementedID = id
	m.incrementedCount++
	rec.AccessCount++
	return rec, nil
}

type mockUsageRepo struct {
	usage    repository.TenantUsage
	addBytes int64
	addFiles int64
	addErr   error
}

func (m *mockUsageRepo) AddUsage(ctx context.Context, tenantID string, bytes int64, files int64) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.addBytes += bytes
	m.addFiles += files
	m.usage.UsedBytes += bytes
	m.usage.FileCount += files
	return nil
}

func (m *mockUsageRepo) GetUsage(ctx context.Context, tenantID string) (repository.TenantUsage, error) {
	return m.usage, nil
}

type mockAuditor struct {
	changes int
	oldVis  domain.FileVisibility
	newVis  domain.FileVisibility
	reason  string
}

func (m *mockAuditor) RecordPermissionChange(fileID, tenantID, actorID string, oldVis, newVis domain.FileVisibility, reason string) {
	m.changes++
	m.oldVis = oldVis
	m.newVis = newVis
	m.reason = reason
}

func uploadRequest() *domain.ProcessContext {
	return &domain.ProcessContext{
		Operation: domain.OperationUpload,
		TenantID:  "fam-1",
		ActorID:   "alice",
		ActorRole: domain.RoleOwner,
		TraceID:   "trace-1",
		FileID:    "file-1",
		FileName:  "birthday.jpg",
		Category:  "photos",
		SizeBytes: 1024,
	}
}

func TestUploadStrategy_CreatesRecordAndAddsUsage(t *testing.T) {
	files := newMockFileRepo()
	usage := &mockUsageRepo{}
	s := NewUploadStrategy(files, usage, 0)

	record, err := s.Execute(context.Background(), Input{
		Request:  uploadRequest(),
		Location: domain.StorageLocation{Backend: domain.StorageLocal, Bucket: "files", Key: "fam-1/k"},
		MimeType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.Equal(t, "file-1", record.ID)
	assert.Equal(t, domain.VisibilityPrivate, record.Visibility, "visibility defaults to private")
	assert.Equal(t, "image/jpeg", record.MimeType)
	assert.Equal(t, domain.FileStatusStored, record.Status)
	assert.Equal(t, domain.StorageLocal, record.Backend)
	assert.Equal(t, int64(1024), usage.addBytes)
	assert.Equal(t, int64(1), usage.addFiles)
}

func TestUploadStrategy_QuotaExceeded(t *testing.T) {
	files := newMockFileRepo()
	usage := &mockUsageRepo{usage: repository.TenantUsage{UsedBytes: 9000}}
	s := NewUploadStrategy(files, usage, 10000)

	req := uploadRequest()
	req.SizeBytes = 2048

	_, err := s.Execute(context.Background(), Input{Request: req})
	require.Error(t, err)

	code, _ := domain.Classify(err)
	assert.Equal(t, domain.CodeQuotaExceeded, code)
	assert.Nil(t, files.created, "no record is created when quota is exceeded")
}

func TestUploadStrategy_CreateFailureIsMetadataConflict(t *testing.T) {
	files := newMockFileRepo()
	files.createErr = errors.New("duplicate key")
	s := NewUploadStrategy(files, &mockUsageRepo{}, 0)

	_, err := s.Execute(context.Background(), Input{Request: uploadRequest()})
	require.Error(t, err)

	code, _ := domain.Classify(err)
	assert.Equal(t, domain.CodeMetadataConflict, code)
}

func TestViewStrategy_BumpsAccessCount(t *testing.T) {
	files := newMockFileRepo()
	files.records["file-1"] = &domain.FileRecord{ID: "file-1", TenantID: "fam-1"}
	s := NewViewStrategy(files)

	req := uploadRequest()
	req.Operation = domain.OperationView

	record, err := s.Execute(context.Background(), Input{Request: req})
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.AccessCount)
	assert.Equal(t, "file-1", files.incrementedID)
}

func TestDownloadStrategy_MissingFile(t *testing.T) {
	s := NewDownloadStrategy(newMockFileRepo())

	req := uploadRequest()
	req.Operation = domain.OperationDownload

	_, err := s.Execute(context.Background(), Input{Request: req})
	require.Error(t, err)

	code, _ := domain.Classify(err)
	assert.Equal(t, domain.CodeNotFound, code)
}

func TestDeleteStrategy_SoftDeletesAndReleasesUsage(t *testing.T) {
	files := newMockFileRepo()
	existing := &domain.FileRecord{ID: "file-1", TenantID: "fam-1", SizeBytes: 1024, Status: domain.FileStatusStored}
	files.records["file-1"] = existing
	usage := &mockUsageRepo{usage: repository.TenantUsage{UsedBytes: 1024, FileCount: 1}}
	s := NewDeleteStrategy(files, usage)

	req := uploadRequest()
	req.Operation = domain.OperationDelete

	record, err := s.Execute(context.Background(), Input{Request: req, Record: existing})
	require.NoError(t, err)

	assert.Equal(t, domain.FileStatusDeleted, record.Status)
	assert.Equal(t, domain.FileStatusDeleted, files.updatedStatus)
	assert.Equal(t, int64(0), usage.usage.UsedBytes)
	assert.Equal(t, int64(0), usage.usage.FileCount)
}

func TestModifyPermissionsStrategy_UpdatesAndAudits(t *testing.T) {
	files := newMockFileRepo()
	existing := &domain.FileRecord{ID: "file-1", TenantID: "fam-1", Visibility: domain.VisibilityPrivate}
	files.records["file-1"] = existing
	auditor := &mockAuditor{}
	s := NewModifyPermissionsStrategy(files, auditor)

	req := uploadRequest()
	req.Operation = domain.OperationModifyPermissions
	req.Visibility = domain.VisibilityFamily
	req.Attributes = map[string]string{"reason": "share with family"}

	record, err := s.Execute(context.Background(), Input{Request: req, Record: existing})
	require.NoError(t, err)

	assert.Equal(t, domain.VisibilityFamily, record.Visibility)
	assert.Equal(t, domain.VisibilityFamily, files.updatedVis)
	assert.Equal(t, 1, auditor.changes)
	assert.Equal(t, domain.VisibilityPrivate, auditor.oldVis)
	assert.Equal(t, domain.VisibilityFamily, auditor.newVis)
	assert.Equal(t, "share with family", auditor.reason)
}

func TestModifyPermissionsStrategy_RejectsNonOwner(t *testing.T) {
	files := newMockFileRepo()
	existing := &domain.FileRecord{ID: "file-1", TenantID: "fam-1", Visibility: domain.VisibilityFamily}
	files.records["file-1"] = existing
	auditor := &mockAuditor{}
	s := NewModifyPermissionsStrategy(files, auditor)

	req := uploadRequest()
	req.Operation = domain.OperationModifyPermissions
	req.ActorRole = domain.RoleFamilyMember
	req.Visibility = domain.VisibilityPublic

	_, err := s.Execute(context.Background(), Input{Request: req, Record: existing})
	require.Error(t, err)

	code, _ := domain.Classify(err)
	assert.Equal(t, domain.CodePermissionDenied, code)
	assert.Zero(t, auditor.changes)
}

func TestRegistry_FailFast(t *testing.T) {
	registry := NewRegistry()
	files := newMockFileRepo()
	require.NoError(t, registry.Register(NewViewStrategy(files)))

	_, err := registry.Resolve(domain.OperationView)
	require.NoError(t, err)

	_, err = registry.Resolve(domain.OperationDelete)
	require.Error(t, err)
	code, _ := domain.Classify(err)
	assert.Equal(t, domain.CodeConfiguration, code)

	assert.Error(t, registry.Register(NewViewStrategy(files)), "duplicate registration must fail")
	assert.Error(t, registry.Register(nil))
}
