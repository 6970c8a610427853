package pipeline

import (
	"context"

	"familyvault/internal/strategy"
)

// MetadataStage 通过策略注册表解析操作对应的记账策略并执行。
// 只有存储 I/O 成功才会到达这里；策略失败时流水线驱动会执行
// 已登记的存储补偿清理。
type MetadataStage struct {
	registry *strategy.Registry
}

func NewMetadataStage(registry *strategy.Registry) *MetadataStage {
	return &MetadataStage{registry: registry}
}

func (s *MetadataStage) Name() string { return "metadata" }

func (s *MetadataStage) Run(ctx context.Context, exec *Execution) error {
	req := exec.Request

	st, err := s.registry.Resolve(req.Operation)
	if err != nil {
		return err
	}

	record, err := st.Execute(ctx, strategy.Input{
		Request:  req,
		Record:   exec.Record,
		Location: exec.Location,
		MimeType: exec.MimeType,
	})
	if err != nil {
		return err
	}

	exec.Record = record
	return nil
}
