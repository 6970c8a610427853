package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"familyvault/internal/audit"
	"familyvault/internal/domain"
	"familyvault/internal/middleware"
	"familyvault/internal/repository"
	"familyvault/internal/service"
)

// FileHandler 提供文件操作与审计相关的 HTTP 端点。
type FileHandler struct {
	service   *service.FileService
	audits    *audit.Service
	maxUpload int64
}

func NewFileHandler(s *service.FileService, audits *audit.Service, maxUpload int64) *FileHandler {
	if maxUpload <= 0 {
		maxUpload = 100 * 1024 * 1024
	}
	return &FileHandler{service: s, audits: audits, maxUpload: maxUpload}
}

func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.ListFiles)
		r.Post("/", h.UploadFile)
		r.Get("/{id}", h.ViewFile)
		r.Get("/{id}/download", h.DownloadFile)
		r.Get("/{id}/url", h.FileAccessURL)
		r.Delete("/{id}", h.DeleteFile)
		r.Patch("/{id}/visibility", h.ModifyVisibility)
		r.Get("/{id}/audit", h.AuditTrail)
		r.Get("/{id}/risk", h.RiskScore)
	})
}

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

const multipartMemoryBudget int64 = 16 * 1024 * 1024

// sniffBudget 交给校验阶段做 MIME 嗅探的头部字节数。
const sniffBudget = 3072

// UploadFile 接受 multipart/form-data 上传并走完整处理流水线。
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	who, ok := callerIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemoryBudget)
	defer r.Body.Close()

	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	sizeBytes, err := determineFileSize(file, header)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sniff, err := readSniff(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}

	originalName := header.Filename
	if override := strings.TrimSpace(r.FormValue("original_name")); override != "" {
		originalName = override
	}

	visibility := domain.FileVisibility(strings.TrimSpace(r.FormValue("visibility")))
	backend := domain.StorageType(strings.TrimSpace(r.FormValue("backend")))

	result, record := h.service.Upload(r.Context(), who, service.UploadInput{
		FileName:   originalName,
		Category:   strings.TrimSpace(r.FormValue("category")),
		FolderPath: strings.TrimSpace(r.FormValue("folder_path")),
		SizeBytes:  sizeBytes,
		Backend:    backend,
		Visibility: visibility,
		Reader:     file,
		Sniff:      sniff,
	})
	if !result.Success {
		writeProcessFailure(w, result)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: record})
}

// ListFiles 返回租户内的文件集合，支持状态/可见性/分类过滤与分页。
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	who, ok := callerIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	params := repository.ListFilesParams{
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			params.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			params.Offset = offset
		}
	}

	for _, raw := range splitQueryValues(r, "status", "statuses") {
		params.Statuses = append(params.Statuses, domain.FileStatus(raw))
	}
	for _, raw := range splitQueryValues(r, "visibility", "visibilities") {
		params.Visibilities = append(params.Visibilities, domain.FileVisibility(raw))
	}

	files, err := h.service.List(r.Context(), who, params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []domain.FileRecord{}
	}

	writeJSON(w, http.StatusOK, envelope{Data: files})
}

// ViewFile 走查看流水线并返回文件元数据。
func (h *FileHandler) ViewFile(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	result, record := h.service.View(r.Context(), who, id)
	if !result.Success {
		writeProcessFailure(w, result)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: record})
}

// DownloadFile 走下载流水线并把文件内容写回响应。
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	result, record, content := h.service.Download(r.Context(), who, id)
	if !result.Success {
		writeProcessFailure(w, result)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", record.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.OriginalName))
	w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))

	if _, err := io.Copy(w, content); err != nil {
		// 客户端可能已断开，无法再写入错误响应
		return
	}
}

// FileAccessURL 先走查看流水线做裁决，放行后签发带时效的访问地址。
func (h *FileHandler) FileAccessURL(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	result, record := h.service.View(r.Context(), who, id)
	if !result.Success {
		writeProcessFailure(w, result)
		return
	}

	url, err := h.service.AccessURL(r.Context(), record)
	if err != nil {
		code, message := domain.Classify(err)
		writeJSON(w, code.HTTPStatus(), errorEnvelope{Error: message, Code: string(code)})
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]string{"url": url}})
}

// DeleteFile 走删除流水线：元数据软删除加物理字节清除。
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	result := h.service.Delete(r.Context(), who, id)
	if !result.Success {
		writeProcessFailure(w, result)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": id, "deleted": true}})
}

type modifyVisibilityRequest struct {
	Visibility string `json:"visibility"`
	Reason     string `json:"reason"`
}

// ModifyVisibility 走改权限流水线，记录带新旧值的审计。
func (h *FileHandler) ModifyVisibility(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	var payload modifyVisibilityRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, record := h.service.ModifyVisibility(r.Context(), who, id,
		domain.FileVisibility(strings.TrimSpace(payload.Visibility)), strings.TrimSpace(payload.Reason))
	if !result.Success {
		writeProcessFailure(w, result)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: record})
}

// AuditTrail 返回某文件最近的审计记录，仅 owner 可查。
func (h *FileHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	if !domain.CanAdminister(who.Role) {
		writeError(w, http.StatusForbidden, "only the owner may read the audit trail")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.audits.GetAuditTrail(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load audit trail")
		return
	}
	if records == nil {
		records = []domain.AuditRecord{}
	}

	writeJSON(w, http.StatusOK, envelope{Data: records})
}

// RiskScore 返回某文件的启发式风险分，仅 owner 可查。
func (h *FileHandler) RiskScore(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	if !domain.CanAdminister(who.Role) {
		writeError(w, http.StatusForbidden, "only the owner may read the risk score")
		return
	}

	score, err := h.audits.ComputeRiskScore(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute risk score")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: score})
}

func (h *FileHandler) callerAndID(w http.ResponseWriter, r *http.Request) (service.Identity, string, bool) {
	if h == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return service.Identity{}, "", false
	}

	who, ok := callerIdentity(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return service.Identity{}, "", false
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return service.Identity{}, "", false
	}

	return who, id, true
}

func callerIdentity(r *http.Request) (service.Identity, bool) {
	who, ok := middleware.GetIdentity(r.Context())
	if !ok {
		return service.Identity{}, false
	}
	return service.Identity{ActorID: who.ActorID, TenantID: who.TenantID, Role: who.Role}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}

func writeProcessFailure(w http.ResponseWriter, result *domain.ProcessResult) {
	writeJSON(w, result.Code.HTTPStatus(), errorEnvelope{
		Error:   result.Message,
		Code:    string(result.Code),
		TraceID: result.TraceID,
	})
}

func splitQueryValues(r *http.Request, key, combinedKey string) []string {
	values := r.URL.Query()[key]
	if len(values) == 0 {
		if combined := r.URL.Query().Get(combinedKey); combined != "" {
			values = strings.Split(combined, ",")
		}
	}

	var out []string
	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func determineFileSize(file multipart.File, header *multipart.FileHeader) (int64, error) {
	if header != nil && header.Size > 0 {
		return header.Size, nil
	}

	seeker, ok := file.(io.Seeker)
	if !ok {
		return 0, fmt.Errorf("cannot determine file size")
	}

	size, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("measure file: %w", err)
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind file: %w", err)
	}

	return size, nil
}

// readSniff 读取头部字节供 MIME 嗅探，读完把流倒回起点。
func readSniff(file multipart.File) ([]byte, error) {
	buf := make([]byte, sniffBudget)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("sniff upload: %w", err)
	}

	seeker, ok := file.(io.Seeker)
	if !ok {
		return nil, fmt.Errorf("upload reader is not seekable")
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return buf[:n], nil
}
