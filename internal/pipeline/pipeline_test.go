package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familyvault/internal/domain"
	"familyvault/internal/repository"
	"familyvault/internal/storage"
	"familyvault/internal/strategy"
)

// memFileRepo 是测试用的内存元数据存储。
type memFileRepo struct {
	mu      sync.Mutex
	records map[string]*domain.FileRecord

	createErr error
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{records: make(map[string]*domain.FileRecord)}
}

func (m *memFileRepo) Create(ctx context.Context, record *domain.FileRecord) (*domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	clone := *record
	m.records[record.ID] = &clone
	return &clone, nil
}

func (m *memFileRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *memFileRepo) List(ctx context.Context, tenantID string, params repository.ListFilesParams) ([]domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FileRecord
	for _, rec := range m.records {
		if rec.TenantID == tenantID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memFileRepo) UpdateStatus(ctx context.Context, tenantID, id string, status domain.FileStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Status = status
	return nil
}

func (m *memFileRepo) UpdateVisibility(ctx context.Context, tenantID, id string, vis domain.FileVisibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Visibility = vis
	return nil
}

func (m *memFileRepo) IncrementAccess(ctx context.Context, tenantID, id string) (*domain.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec.AccessCount++
	now := time.Now().UTC()
	rec.LastAccessAt = &now
	clone := *rec
	return &clone, nil
}

type memUsageRepo struct {
	usage repository.TenantUsage
}

func (m *memUsageRepo) AddUsage(ctx context.Context, tenantID string, bytes int64, files int64) error {
	m.usage.UsedBytes += bytes
	m.usage.FileCount += files
	return nil
}

func (m *memUsageRepo) GetUsage(ctx context.Context, tenantID string) (repository.TenantUsage, error) {
	return m.usage, nil
}

// memAdapter 把对象放在内存 map 里，并统计删除次数以验证补偿语义。
type memAdapter struct {
	backend domain.StorageType
	objects map[string][]byte
	putErr  error
	puts    int
	deletes int
}

func newMemAdapter(backend domain.StorageType) *memAdapter {
	return &memAdapter{backend: backend, objects: make(map[string][]byte)}
}

func (a *memAdapter) Type() domain.StorageType { return a.backend }

func (a *memAdapter) Put(ctx context.Context, loc domain.StorageLocation, r io.Reader, size int64, contentType string) error {
	if a.putErr != nil {
		return a.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.puts++
	a.objects[loc.Bucket+"/"+loc.Key] = data
	return nil
}

func (a *memAdapter) Get(ctx context.Context, loc domain.StorageLocation) (io.ReadCloser, error) {
	data, ok := a.objects[loc.Bucket+"/"+loc.Key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *memAdapter) Delete(ctx context.Context, loc domain.StorageLocation) error {
	a.deletes++
	delete(a.objects, loc.Bucket+"/"+loc.Key)
	return nil
}

func (a *memAdapter) Healthy(ctx context.Context) error { return nil }

func (a *memAdapter) AccessURL(ctx context.Context, loc domain.StorageLocation, ttl time.Duration) (string, error) {
	return "mem://" + loc.Bucket + "/" + loc.Key, nil
}

// recordedAttempt 捕获一条审计调用。
type recordedAttempt struct {
	fileID  string
	op      domain.FileOperation
	allowed bool
	reason  string
}

type memRecorder struct {
	attempts []recordedAttempt
	changes  []domain.FileVisibility
}

func (r *memRecorder) RecordAccessAttempt(fileID, tenantID, actorID string, op domain.FileOperation, allowed bool, reason string) {
	r.attempts = append(r.attempts, recordedAttempt{fileID: fileID, op: op, allowed: allowed, reason: reason})
}

func (r *memRecorder) RecordPermissionChange(fileID, tenantID, actorID string, oldVis, newVis domain.FileVisibility, reason string) {
	r.changes = append(r.changes, newVis)
}

type testEnv struct {
	pipe     *Pipeline
	files    *memFileRepo
	usage    *memUsageRepo
	adapter  *memAdapter
	recorder *memRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	files := newMemFileRepo()
	usage := &memUsageRepo{}
	adapter := newMemAdapter(domain.StorageLocal)
	recorder := &memRecorder{}

	registry := storage.NewRegistry()
	require.NoError(t, registry.Register(adapter, storage.NewLocalNaming("files")))

	strategies := strategy.NewRegistry()
	for _, s := range []strategy.Strategy{
		strategy.NewUploadStrategy(files, usage, 0),
		strategy.NewViewStrategy(files),
		strategy.NewDownloadStrategy(files),
		strategy.NewDeleteStrategy(files, usage),
		strategy.NewModifyPermissionsStrategy(files, recorder),
	} {
		require.NoError(t, strategies.Register(s))
	}

	pipe := New(zerolog.Nop(),
		NewValidationStage(ValidationConfig{MaxSizeBytes: 1 << 20, BlockedMIMEPrefixes: DefaultBlockedMIMEPrefixes()}),
		NewPermissionStage(files, recorder),
		NewStorageStage(registry, domain.StorageLocal),
		NewMetadataStage(strategies),
		NewAuditStage(recorder),
	)

	return &testEnv{pipe: pipe, files: files, usage: usage, adapter: adapter, recorder: recorder}
}

func uploadContext(fileID string, payload []byte) *domain.ProcessContext {
	return &domain.ProcessContext{
		Operation: domain.OperationUpload,
		TenantID:  "fam-1",
		ActorID:   "alice",
		ActorRole: domain.RoleOwner,
		TraceID:   "trace-up",
		FileID:    fileID,
		FileName:  "notes.txt",
		Category:  "docs",
		SizeBytes: int64(len(payload)),
		Payload:   bytes.NewReader(payload),
		Sniff:     payload,
	}
}

func opContext(op domain.FileOperation, fileID string, role domain.UserRole) *domain.ProcessContext {
	return &domain.ProcessContext{
		Operation: op,
		TenantID:  "fam-1",
		ActorID:   "bob",
		ActorRole: role,
		TraceID:   "trace-op",
		FileID:    fileID,
	}
}

func TestPipeline_UploadThenView(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte("plain text notes")

	result := env.pipe.Process(context.Background(), uploadContext("file-1", payload))
	require.True(t, result.Success, "upload failed: %s", result.Message)
	assert.Equal(t, "file-1", result.FileID)
	assert.Equal(t, 1, env.adapter.puts)
	assert.Equal(t, int64(len(payload)), env.usage.usage.UsedBytes)

	view := opContext(domain.OperationView, "file-1", domain.RoleOwner)
	exec := NewExecution(view)
	viewResult := env.pipe.Run(context.Background(), exec)
	require.True(t, viewResult.Success)
	assert.Equal(t, int64(1), exec.Record.AccessCount)

	// 上传与查看各留下一条放行审计
	require.Len(t, env.recorder.attempts, 2)
	assert.True(t, env.recorder.attempts[0].allowed)
	assert.Equal(t, domain.OperationUpload, env.recorder.attempts[0].op)
	assert.Equal(t, domain.OperationView, env.recorder.attempts[1].op)
}

func TestPipeline_DownloadStreamsStoredBytes(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte("download me")

	require.True(t, env.pipe.Process(context.Background(), uploadContext("file-1", payload)).Success)

	exec := NewExecution(opContext(domain.OperationDownload, "file-1", domain.RoleOwner))
	result := env.pipe.Run(context.Background(), exec)
	require.True(t, result.Success)
	require.NotNil(t, exec.Output)

	got, err := io.ReadAll(exec.Output)
	require.NoError(t, err)
	require.NoError(t, exec.Output.Close())
	assert.Equal(t, payload, got)
}

// 被拒请求不触达存储，也不产生元数据写入，但必须留下拒绝审计。
func TestPipeline_PermissionDeniedBeforeStorageIO(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.pipe.Process(context.Background(), uploadContext("file-1", []byte("secret"))).Success)

	putsBefore := env.adapter.puts
	result := env.pipe.Process(context.Background(),
		opContext(domain.OperationDownload, "file-1", domain.RolePublicUser))

	require.False(t, result.Success)
	assert.Equal(t, domain.CodePermissionDenied, result.Code)
	assert.Equal(t, putsBefore, env.adapter.puts, "denied request must not touch storage")

	last := env.recorder.attempts[len(env.recorder.attempts)-1]
	assert.False(t, last.allowed)
	assert.Equal(t, domain.OperationDownload, last.op)
	assert.NotEmpty(t, last.reason)
}

func TestPipeline_DeleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.pipe.Process(context.Background(), uploadContext("file-1", []byte("bytes"))).Success)

	first := env.pipe.Process(context.Background(), opContext(domain.OperationDelete, "file-1", domain.RoleOwner))
	require.True(t, first.Success)
	assert.Empty(t, env.adapter.objects, "delete removes physical bytes")
	assert.Equal(t, int64(0), env.usage.usage.UsedBytes)

	// 已删文件再删或再看，统一报 not found
	second := env.pipe.Process(context.Background(), opContext(domain.OperationDelete, "file-1", domain.RoleOwner))
	require.False(t, second.Success)
	assert.Equal(t, domain.CodeNotFound, second.Code)

	view := env.pipe.Process(context.Background(), opContext(domain.OperationView, "file-1", domain.RoleOwner))
	require.False(t, view.Success)
	assert.Equal(t, domain.CodeNotFound, view.Code)
}

// 存储写入成功后元数据失败，要把已落盘的字节补偿删除，且只删一次。
func TestPipeline_MetadataFailureCompensatesStorageWrite(t *testing.T) {
	env := newTestEnv(t)
	env.files.createErr = errors.New("unique constraint violated")

	result := env.pipe.Process(context.Background(), uploadContext("file-1", []byte("orphan bytes")))

	require.False(t, result.Success)
	assert.Equal(t, domain.CodeMetadataConflict, result.Code)
	assert.Equal(t, 1, env.adapter.puts)
	assert.Equal(t, 1, env.adapter.deletes, "compensation must run exactly once")
	assert.Empty(t, env.adapter.objects, "no orphan bytes may remain")
	assert.Equal(t, int64(0), env.usage.usage.UsedBytes)
}

func TestPipeline_UnregisteredBackendIsConfigurationError(t *testing.T) {
	env := newTestEnv(t)

	req := uploadContext("file-1", []byte("bytes"))
	req.Backend = domain.StorageCloudS3

	result := env.pipe.Process(context.Background(), req)
	require.False(t, result.Success)
	assert.Equal(t, domain.CodeConfiguration, result.Code)
	assert.Zero(t, env.adapter.puts)
}

func TestPipeline_ModifyPermissionsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.pipe.Process(context.Background(), uploadContext("file-1", []byte("bytes"))).Success)

	modify := opContext(domain.OperationModifyPermissions, "file-1", domain.RoleOwner)
	modify.Visibility = domain.VisibilityFamily
	result := env.pipe.Process(context.Background(), modify)
	require.True(t, result.Success)
	require.Equal(t, []domain.FileVisibility{domain.VisibilityFamily}, env.recorder.changes)

	// 升为 family 后家庭成员可下载
	download := env.pipe.Process(context.Background(),
		opContext(domain.OperationDownload, "file-1", domain.RoleFamilyMember))
	assert.True(t, download.Success)

	// 家庭成员无权改权限
	hijack := opContext(domain.OperationModifyPermissions, "file-1", domain.RoleFamilyMember)
	hijack.Visibility = domain.VisibilityPublic
	denied := env.pipe.Process(context.Background(), hijack)
	require.False(t, denied.Success)
	assert.Equal(t, domain.CodePermissionDenied, denied.Code)
}

func TestPipeline_ValidationRejectsBadUploads(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		mutate func(req *domain.ProcessContext)
	}{
		{"empty file name", func(req *domain.ProcessContext) { req.FileName = "" }},
		{"path separator in name", func(req *domain.ProcessContext) { req.FileName = "../../etc/passwd" }},
		{"missing payload", func(req *domain.ProcessContext) { req.Payload = nil }},
		{"zero size", func(req *domain.ProcessContext) { req.SizeBytes = 0 }},
		{"oversized", func(req *domain.ProcessContext) { req.SizeBytes = 2 << 20 }},
		{"unknown backend", func(req *domain.ProcessContext) { req.Backend = domain.StorageType("tape") }},
		{"missing actor", func(req *domain.ProcessContext) { req.ActorID = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := uploadContext("file-x", []byte("content"))
			tc.mutate(req)

			result := env.pipe.Process(context.Background(), req)
			require.False(t, result.Success)
			assert.Equal(t, domain.CodeValidation, result.Code)
		})
	}

	assert.Zero(t, env.adapter.puts, "invalid uploads must not reach storage")
}

func TestPipeline_ViewOfMissingFile(t *testing.T) {
	env := newTestEnv(t)

	result := env.pipe.Process(context.Background(), opContext(domain.OperationView, "ghost", domain.RoleOwner))
	require.False(t, result.Success)
	assert.Equal(t, domain.CodeNotFound, result.Code)
}

func TestPipeline_NilRequest(t *testing.T) {
	env := newTestEnv(t)
	result := env.pipe.Process(context.Background(), nil)
	require.False(t, result.Success)
	assert.Equal(t, domain.CodeValidation, result.Code)
}
