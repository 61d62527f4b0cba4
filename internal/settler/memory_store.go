package settler

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemorySettlementStore 以内存方式保存结算标记，适用于测试与单机部署。
type MemorySettlementStore struct {
	mu     sync.Mutex
	filled map[common.Hash]struct{}
}

// NewMemorySettlementStore 创建 MemorySettlementStore。
func NewMemorySettlementStore() *MemorySettlementStore {
	return &MemorySettlementStore{filled: make(map[common.Hash]struct{})}
}

// MarkFilled 实现 SettlementStore。互斥锁保证检查与置位的原子性：
// 并发 fill 同一 intentId 时只有第一个观察到"未结算"。
func (m *MemorySettlementStore) MarkFilled(_ context.Context, intentID common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.filled[intentID]; ok {
		return ErrAlreadyFilled
	}
	m.filled[intentID] = struct{}{}
	return nil
}

// Filled 实现 SettlementStore。
func (m *MemorySettlementStore) Filled(_ context.Context, intentID common.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.filled[intentID]
	return ok, nil
}

// Close 对内存存储无需操作。
func (m *MemorySettlementStore) Close() error {
	return nil
}

var _ SettlementStore = (*MemorySettlementStore)(nil)
