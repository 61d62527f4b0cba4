package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"IntentLane/pkg/logger"
)

// Stage 标识事件发生在结算流程的哪个阶段。
type Stage string

const (
	StageSettled         Stage = "settled"
	StageExecuted        Stage = "executed"
	StageExecutionFailed Stage = "execution_failed"
	StageRejected        Stage = "rejected"
)

// Event 是对外可观察的结算记录。源域的证明机制以 (intentId, outcome)
// 为凭据确认履约；事件 schema 是对外契约。
type Event struct {
	ID         string         `json:"id"`
	IntentID   common.Hash    `json:"intent_id"`
	Stage      Stage          `json:"stage"`
	Outcome    string         `json:"outcome"`
	Filler     common.Address `json:"filler"`
	User       common.Address `json:"user"`
	ErrorCode  string         `json:"error_code,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent 构造带有唯一标识和时间戳的事件。
func NewEvent(intentID common.Hash, stage Stage, outcome string) Event {
	return Event{
		ID:         uuid.NewString(),
		IntentID:   intentID,
		Stage:      stage,
		Outcome:    outcome,
		OccurredAt: time.Now(),
	}
}

// Publisher 将事件投递到某个外部可观察的通道。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Fanout 将事件广播给多个发布器，任何一个失败不会阻断其余发布。
type Fanout struct {
	publishers []Publisher
}

// NewFanout 创建广播发布器。
func NewFanout(publishers ...Publisher) *Fanout {
	kept := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &Fanout{publishers: kept}
}

// Publish 实现 Publisher。
func (f *Fanout) Publish(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("publisher %T: %w", p, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Close 关闭所有下游发布器。
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AuditPublisher 将事件写入审计日志，是默认兜底的可观察通道。
type AuditPublisher struct{}

// Publish 实现 Publisher。
func (AuditPublisher) Publish(_ context.Context, event Event) error {
	logger.Audit().Info("settlement_event",
		slog.String("event_id", event.ID),
		slog.String("intent_id", event.IntentID.Hex()),
		slog.String("stage", string(event.Stage)),
		slog.String("outcome", event.Outcome),
		slog.String("filler", event.Filler.Hex()),
		slog.String("user", event.User.Hex()),
		slog.String("error_code", event.ErrorCode),
	)
	return nil
}

// Close 实现 Publisher。
func (AuditPublisher) Close() error { return nil }
