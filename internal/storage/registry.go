package storage

import (
	"errors"
	"fmt"

	"familyvault/internal/domain"
)

// ErrObjectNotFound 表示后端中不存在目标对象。
var ErrObjectNotFound = errors.New("storage: object not found")

// Registry 维护后端类型到适配器与命名策略的只读映射。
// 进程启动时一次性构建，之后只读，无需加锁；缺失映射在解析时立即报
// 配置错误，而不是静默跳过。
type Registry struct {
	adapters map[domain.StorageType]Adapter
	namings  map[domain.StorageType]NamingStrategy
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.StorageType]Adapter),
		namings:  make(map[domain.StorageType]NamingStrategy),
	}
}

// Register 登记一个后端的适配器与配对命名策略。
// 同一类型重复注册是装配错误，直接返回失败让启动中止。
func (r *Registry) Register(adapter Adapter, naming NamingStrategy) error {
	if adapter == nil || naming == nil {
		return fmt.Errorf("register storage: nil adapter or naming strategy")
	}
	t := adapter.Type()
	if !t.Valid() {
		return fmt.Errorf("register storage: unknown storage type %q", t)
	}
	if _, exists := r.adapters[t]; exists {
		return fmt.Errorf("register storage: duplicate adapter for %q", t)
	}
	r.adapters[t] = adapter
	r.namings[t] = naming
	return nil
}

// Resolve 返回后端类型对应的适配器。
// 未注册的类型是致命配置错误，永远不是可恢复的运行时状况。
func (r *Registry) Resolve(t domain.StorageType) (Adapter, error) {
	adapter, ok := r.adapters[t]
	if !ok {
		return nil, domain.NewError(domain.CodeConfiguration,
			fmt.Sprintf("no storage adapter registered for backend %q", t))
	}
	return adapter, nil
}

// Naming 返回后端类型对应的命名策略。
func (r *Registry) Naming(t domain.StorageType) (NamingStrategy, error) {
	naming, ok := r.namings[t]
	if !ok {
		return nil, domain.NewError(domain.CodeConfiguration,
			fmt.Sprintf("no naming strategy registered for backend %q", t))
	}
	return naming, nil
}

// Types 返回已注册的后端类型，供健康检查遍历。
func (r *Registry) Types() []domain.StorageType {
	types := make([]domain.StorageType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}
