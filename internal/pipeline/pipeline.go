// Package pipeline 实现文件请求的拦截器链。
// 阶段顺序固定：校验 → 权限 → 存储 I/O → 元数据记账 → 审计；
// 任一阶段返回错误即短路，所有请求走完全相同的阶段序列。
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"familyvault/internal/domain"
)

// Execution 是单次流水线执行的私有状态。请求上下文本身不可变，
// 各阶段的派生产物（预加载记录、存储位置、输出流）挂在这里。
type Execution struct {
	Request *domain.ProcessContext

	// Record 权限阶段预加载（非上传），元数据阶段写入最终记录。
	Record *domain.FileRecord
	// Location 存储阶段写入的位置，仅上传填充。
	Location domain.StorageLocation
	// MimeType 校验阶段嗅探出的权威 MIME，仅上传填充。
	MimeType string
	// Output 下载操作打开的读取流，由调用方负责关闭。
	Output io.ReadCloser

	compensate  func(context.Context) error
	compensated bool
}

// NewExecution 为一个请求上下文创建执行状态。
func NewExecution(req *domain.ProcessContext) *Execution {
	return &Execution{Request: req}
}

// SetCompensation 登记存储侧写入的补偿清理，供后续阶段失败时回滚。
func (e *Execution) SetCompensation(fn func(context.Context) error) {
	e.compensate = fn
}

// runCompensation 执行补偿清理，保证至多执行一次。
func (e *Execution) runCompensation(ctx context.Context) error {
	if e.compensate == nil || e.compensated {
		return nil
	}
	e.compensated = true
	return e.compensate(ctx)
}

// Stage 是流水线中的一个阶段。返回 nil 表示继续，
// 返回错误（应为 *domain.Error）则终止整条链。
type Stage interface {
	Name() string
	Run(ctx context.Context, exec *Execution) error
}

// Pipeline 按固定顺序驱动各阶段。
type Pipeline struct {
	stages []Stage
	logger zerolog.Logger
}

// New 组装流水线。阶段列表在进程入口显式构造并注入，
// 不做任何自动发现。
func New(logger zerolog.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, logger: logger.With().Str("component", "pipeline").Logger()}
}

// Process 是 §外部接口 约定的入口：执行请求并返回统一结果。
func (p *Pipeline) Process(ctx context.Context, req *domain.ProcessContext) *domain.ProcessResult {
	return p.Run(ctx, NewExecution(req))
}

// Run 在给定执行状态上驱动流水线，调用方可在结束后读取派生产物
// （如下载流）。任一阶段失败时，若存储写入已登记补偿，会先执行
// 补偿清理再返回失败结果。
func (p *Pipeline) Run(ctx context.Context, exec *Execution) *domain.ProcessResult {
	req := exec.Request
	if req == nil {
		return domain.Fail(domain.NewError(domain.CodeValidation, "process context is nil"), "", "")
	}

	start := time.Now()

	for _, stage := range p.stages {
		stageStart := time.Now()
		err := stage.Run(ctx, exec)
		observeStage(stage.Name(), req.Operation, err, time.Since(stageStart))

		if err == nil {
			continue
		}

		if cerr := exec.runCompensation(ctx); cerr != nil {
			// 补偿失败只能记录，留给对账任务处理
			p.logger.Error().
				Str("trace_id", req.TraceID).
				Str("file_id", req.FileID).
				Err(cerr).
				Msg("存储补偿清理失败，记录待对账")
		}

		result := domain.Fail(err, req.FileID, req.TraceID)
		p.logger.Warn().
			Str("trace_id", req.TraceID).
			Str("operation", string(req.Operation)).
			Str("stage", stage.Name()).
			Str("code", string(result.Code)).
			Dur("elapsed", time.Since(start)).
			Msg("流水线短路")
		return result
	}

	fileID := req.FileID
	if exec.Record != nil {
		fileID = exec.Record.ID
	}

	p.logger.Debug().
		Str("trace_id", req.TraceID).
		Str("operation", string(req.Operation)).
		Str("file_id", fileID).
		Dur("elapsed", time.Since(start)).
		Msg("流水线完成")

	return domain.OK(fileID, req.TraceID, string(req.Operation)+" completed")
}
