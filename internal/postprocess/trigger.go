// Package postprocess 在上传成功后派发异步后置任务（缩略图、文本抽取、
// 标签生成）。派发只在流水线返回成功后发生，不阻塞上传响应；
// 任务失败只记日志并丢弃，绝不回头把上传改判为失败。
package postprocess

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"familyvault/internal/domain"
)

// JobKind 是后置任务类型。
type JobKind string

const (
	JobThumbnail   JobKind = "thumbnail"
	JobTextExtract JobKind = "text_extract"
	JobTagGenerate JobKind = "tag_generate"
)

// Job 是与任务执行方约定的固定载荷。
type Job struct {
	Kind     JobKind `json:"job_kind"`
	FileID   string  `json:"file_id"`
	TenantID string  `json:"tenant_id"`
	TraceID  string  `json:"trace_id"`
}

// Handler 执行一种任务。具体的图像/OCR/标签实现由外部协作方提供，
// 这里只约定派发契约。
type Handler func(ctx context.Context, job Job) error

// Trigger 是上传后置任务的派发器：固定大小的工作协程池消费队列。
type Trigger struct {
	queue    chan Job
	workers  int
	handlers map[JobKind]Handler
	logger   zerolog.Logger
}

// NewTrigger 创建派发器。未注册 Handler 的任务类型只记日志。
func NewTrigger(queueSize, workers int, handlers map[JobKind]Handler, logger zerolog.Logger) *Trigger {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	if handlers == nil {
		handlers = map[JobKind]Handler{}
	}
	return &Trigger{
		queue:    make(chan Job, queueSize),
		workers:  workers,
		handlers: handlers,
		logger:   logger.With().Str("component", "postprocess").Logger(),
	}
}

// OnUploaded 为一次成功上传入队全部后置任务。队列满时丢弃并记日志。
func (t *Trigger) OnUploaded(record *domain.FileRecord, traceID string) {
	for _, kind := range []JobKind{JobThumbnail, JobTextExtract, JobTagGenerate} {
		job := Job{Kind: kind, FileID: record.ID, TenantID: record.TenantID, TraceID: traceID}
		select {
		case t.queue <- job:
		default:
			t.logger.Warn().
				Str("job_kind", string(kind)).
				Str("file_id", record.ID).
				Msg("后置任务队列已满，丢弃任务")
		}
	}
}

// Run 启动工作协程池，阻塞到 ctx 取消且全部协程退出。
func (t *Trigger) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < t.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.work(ctx)
		}()
	}
	wg.Wait()
}

func (t *Trigger) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-t.queue:
			t.handle(ctx, job)
		}
	}
}

func (t *Trigger) handle(ctx context.Context, job Job) {
	handler, ok := t.handlers[job.Kind]
	if !ok {
		t.logger.Debug().
			Str("job_kind", string(job.Kind)).
			Str("file_id", job.FileID).
			Msg("任务类型未注册处理器，跳过")
		return
	}

	if err := handler(ctx, job); err != nil {
		t.logger.Error().
			Str("job_kind", string(job.Kind)).
			Str("file_id", job.FileID).
			Str("trace_id", job.TraceID).
			Err(err).
			Msg("后置任务执行失败，丢弃")
	}
}
