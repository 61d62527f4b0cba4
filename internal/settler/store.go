package settler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	xerrors "IntentLane/internal/errors"
)

// SettlementStore 是结算侧的重放保护存储：intentId 一旦标记为已结算便
// 永不复位，这是"至多一次 fill"的唯一事实来源。
type SettlementStore interface {
	// MarkFilled 以检查并置位的方式标记 intentId。若已标记则返回
	// ErrAlreadyFilled；针对同一 intentId 的并发 fill 至多一个成功。
	MarkFilled(ctx context.Context, intentID common.Hash) error
	// Filled 查询 intentId 是否已结算。
	Filled(ctx context.Context, intentID common.Hash) (bool, error)
	Close() error
}

var (
	// ErrAlreadyFilled 表示 intentId 已被结算。
	ErrAlreadyFilled = xerrors.New(CodeAlreadyFilled, "intent already filled")
	// ErrFundingFailed 表示从填单方拉取垫付资金失败。
	ErrFundingFailed = xerrors.New(CodeFundingFailed, "filler funding failed",
		xerrors.WithSeverity(xerrors.SeverityWarning))
)

const (
	CodeAlreadyFilled xerrors.Code = "SETTLEMENT_ALREADY_FILLED"
	CodeFundingFailed xerrors.Code = "SETTLEMENT_FUNDING_FAILED"
	CodeStranded      xerrors.Code = "SETTLEMENT_FUNDS_STRANDED"
)

func init() {
	xerrors.Register(CodeAlreadyFilled, xerrors.Attributes{
		Message:   "intent already filled",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeFundingFailed, xerrors.Attributes{
		Message:   "filler funding failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeStranded, xerrors.Attributes{
		Message:   "escrowed funds stranded after execution failure",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}
