package pipeline

import (
	"context"
)

// AuditStage 是链尾阶段：前面全部放行后记录一条成功的访问尝试。
// 被拒的尝试由权限阶段在短路前记录。
type AuditStage struct {
	recorder AccessRecorder
}

func NewAuditStage(recorder AccessRecorder) *AuditStage {
	return &AuditStage{recorder: recorder}
}

func (s *AuditStage) Name() string { return "audit" }

func (s *AuditStage) Run(ctx context.Context, exec *Execution) error {
	if s.recorder == nil {
		return nil
	}

	req := exec.Request
	fileID := req.FileID
	if exec.Record != nil {
		fileID = exec.Record.ID
	}

	s.recorder.RecordAccessAttempt(fileID, req.TenantID, req.ActorID, req.Operation, true, "")
	return nil
}
