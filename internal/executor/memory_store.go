package executor

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryExecutionStore 以内存方式保存执行标记，适用于测试与单机部署。
type MemoryExecutionStore struct {
	mu       sync.Mutex
	executed map[common.Hash]struct{}
}

// NewMemoryExecutionStore 创建 MemoryExecutionStore。
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{executed: make(map[common.Hash]struct{})}
}

// MarkExecuted 实现 ExecutionStore。互斥锁保证检查与置位的原子性。
func (m *MemoryExecutionStore) MarkExecuted(_ context.Context, intentID common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executed[intentID]; ok {
		return ErrAlreadyExecuted
	}
	m.executed[intentID] = struct{}{}
	return nil
}

// Executed 实现 ExecutionStore。
func (m *MemoryExecutionStore) Executed(_ context.Context, intentID common.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.executed[intentID]
	return ok, nil
}

// Close 对内存存储无需操作。
func (m *MemoryExecutionStore) Close() error {
	return nil
}

var _ ExecutionStore = (*MemoryExecutionStore)(nil)
