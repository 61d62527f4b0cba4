package executor

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ExecutionStore 是执行代理独立持有的重放保护存储：intentId 一旦标记
// 为已执行便永不复位。它与 Settler 的结算记录分属不同的信任边界。
type ExecutionStore interface {
	// MarkExecuted 以检查并置位的方式标记 intentId。若已标记则返回
	// ErrAlreadyExecuted；针对同一 intentId 的并发调用至多一个成功。
	MarkExecuted(ctx context.Context, intentID common.Hash) error
	// Executed 查询 intentId 是否已被执行。
	Executed(ctx context.Context, intentID common.Hash) (bool, error)
	Close() error
}
