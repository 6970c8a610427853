// Package strategy 按操作类型拆分文件元数据的记账逻辑。
// 策略只与元数据存储交互，物理字节归存储适配器管。
package strategy

import (
	"context"
	"fmt"

	"familyvault/internal/domain"
)

// Input 汇集一次执行中策略所需的上下文。
type Input struct {
	Request *domain.ProcessContext
	// Record 是权限阶段预加载的元数据，上传操作时为 nil。
	Record *domain.FileRecord
	// Location 是存储阶段写入的位置，仅上传操作填充。
	Location domain.StorageLocation
	// MimeType 是校验阶段嗅探出的权威 MIME，仅上传操作填充。
	MimeType string
}

// Strategy 是单个操作类型的元数据记账实现。
// 失败必须让流水线整体短路，不得留下已提交的存储侧副作用。
type Strategy interface {
	// Operation 返回策略负责的操作类型。
	Operation() domain.FileOperation
	// Execute 执行记账，返回创建或更新后的记录。
	Execute(ctx context.Context, in Input) (*domain.FileRecord, error)
}

// Registry 维护操作类型到策略的只读映射，纪律与存储注册表一致：
// 启动期一次性构建，缺失映射在解析时报配置错误。
type Registry struct {
	strategies map[domain.FileOperation]Strategy
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[domain.FileOperation]Strategy)}
}

// Register 登记一个操作的策略，重复注册让启动中止。
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return fmt.Errorf("register strategy: nil strategy")
	}
	op := s.Operation()
	if !op.Valid() {
		return fmt.Errorf("register strategy: unknown operation %q", op)
	}
	if _, exists := r.strategies[op]; exists {
		return fmt.Errorf("register strategy: duplicate strategy for %q", op)
	}
	r.strategies[op] = s
	return nil
}

// Resolve 返回操作对应的策略，未注册是致命配置错误。
func (r *Registry) Resolve(op domain.FileOperation) (Strategy, error) {
	s, ok := r.strategies[op]
	if !ok {
		return nil, domain.NewError(domain.CodeConfiguration,
			fmt.Sprintf("no metadata strategy registered for operation %q", op))
	}
	return s, nil
}
