package fills

import (
	"context"

	"IntentLane/internal/settler"
)

// Store 抽象了作业状态的持久化接口。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim 将待处理作业置为运行中并累加尝试次数。已结算、运行中或
	// 重试耗尽的作业分别返回 ErrJobSettled、ErrJobConflict、ErrJobExhausted。
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSettled(ctx context.Context, id string, outcome settler.Outcome) error
	MarkFailed(ctx context.Context, id string, code string, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context, opts ListOptions) (JobStats, error)
	Close() error
}
