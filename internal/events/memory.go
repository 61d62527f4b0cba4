package events

import (
	"context"
	"sync"
)

// MemoryPublisher 在内存环形缓冲中保留最近的事件，
// 供 API 查询与测试断言使用。
type MemoryPublisher struct {
	mu       sync.Mutex
	capacity int
	buffer   []Event
}

// NewMemoryPublisher 创建内存发布器。capacity 限制保留的事件数量。
func NewMemoryPublisher(capacity int) *MemoryPublisher {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryPublisher{capacity: capacity}
}

// Publish 实现 Publisher。
func (m *MemoryPublisher) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, event)
	if len(m.buffer) > m.capacity {
		m.buffer = m.buffer[len(m.buffer)-m.capacity:]
	}
	return nil
}

// Recent 返回最近的事件副本，最新的在最后。
func (m *MemoryPublisher) Recent(limit int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.buffer) {
		limit = len(m.buffer)
	}
	out := make([]Event, limit)
	copy(out, m.buffer[len(m.buffer)-limit:])
	return out
}

// Close 实现 Publisher。
func (m *MemoryPublisher) Close() error { return nil }

var _ Publisher = (*MemoryPublisher)(nil)
