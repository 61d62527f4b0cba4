package settler

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "IntentLane/internal/errors"
	"IntentLane/internal/events"
	"IntentLane/internal/executor"
	"IntentLane/internal/intent"
	"IntentLane/internal/observability/alerting"
	"IntentLane/internal/state"
	"IntentLane/pkg/logger"
)

// FillRequest 是填单方提交的一次结算请求。
type FillRequest struct {
	// IntentID 是调用方声明的意图标识，作为去重键使用。
	IntentID common.Hash
	// Encoded 是线格式的意图与授权材料。
	Encoded []byte
	// Filler 是垫付资金的填单方身份。
	Filler common.Address
	// FillerData 是填单方附带的不透明数据，本引擎原样记录不做解释。
	FillerData []byte
}

// Outcome 汇总一次 fill 的终态。Settled 为真表示结算标记已置位且
// 托管资金已从填单方转入；Execution 描述下游执行代理的结果。
type Outcome struct {
	IntentID  common.Hash       `json:"intent_id"`
	Filler    common.Address    `json:"filler"`
	User      common.Address    `json:"user"`
	Token     common.Address    `json:"token"`
	Amount    *big.Int          `json:"amount"`
	Settled   bool              `json:"settled"`
	Execution *executor.Outcome `json:"execution,omitempty"`
	// ExecutionError 记录执行代理在消耗意图之前拒绝调用的错误码。
	ExecutionError string `json:"execution_error,omitempty"`
	// Stranded 为真表示意图已结算但执行未提交，垫付资金滞留在托管账户，
	// 需要外部退款通道处理。
	Stranded bool `json:"stranded"`
}

// RefundHandler 是资金滞留场景的外部补救扩展点。基线设计不回滚结算
// 标记与托管转账；外围系统可在此实现退款或人工处置。
type RefundHandler interface {
	HandleStranded(ctx context.Context, tx *state.Tx, intentID common.Hash, in intent.Intent, filler common.Address) error
}

// Settler 是目标域上的托管与去重机构：从填单方拉取垫付资产、保证每个
// intentId 至多结算一次，并将托管资金的支出权授予执行代理。
type Settler struct {
	account        common.Address
	host           *state.Host
	store          SettlementStore
	proxies        *executor.Registry
	capability     executor.Capability
	publisher      events.Publisher
	alerter        alerting.Dispatcher
	refunds        RefundHandler
	verifyIntentID bool
	log            *slog.Logger
}

// Option 定义可选的 Settler 配置。
type Option func(*Settler)

// WithVerifyIntentID 开启更严格的策略：从解码后的意图重新推导标识，
// 与调用方声明的不一致时拒绝。默认关闭，此时声明值仅作去重键。
func WithVerifyIntentID(verify bool) Option {
	return func(s *Settler) {
		s.verifyIntentID = verify
	}
}

// WithEventPublisher 配置对外事件发布器。
func WithEventPublisher(publisher events.Publisher) Option {
	return func(s *Settler) {
		s.publisher = publisher
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(s *Settler) {
		s.alerter = dispatcher
	}
}

// WithRefundHandler 配置资金滞留的补救扩展点。
func WithRefundHandler(handler RefundHandler) Option {
	return func(s *Settler) {
		s.refunds = handler
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(s *Settler) {
		s.log = log
	}
}

// New 构造 Settler。capability 必须与执行代理注册表持有的令牌一致。
func New(host *state.Host, store SettlementStore, proxies *executor.Registry, capability executor.Capability, opts ...Option) *Settler {
	s := &Settler{
		account:    EscrowAccount(),
		host:       host,
		store:      store,
		proxies:    proxies,
		capability: capability,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.log == nil {
		s.log = logger.Named("settler")
	}
	return s
}

// Account 返回托管账户身份。
func (s *Settler) Account() common.Address { return s.account }

// EscrowAccount 返回托管账户的确定性地址。
func EscrowAccount() common.Address {
	digest := crypto.Keccak256([]byte("IntentLane settler v1"))
	return common.BytesToAddress(digest[12:])
}

// Fill 处理填单方的结算提交。
//
// 流程：解码意图 → 从填单方拉取垫付资产入托管 → 结算标记检查并置位 →
// 授予执行代理支出权并调用 execute。除"标记已置位后执行失败"这一明确
// 的基线例外，所有拒绝都会整体回滚本次操作的链上效果。
func (s *Settler) Fill(ctx context.Context, req FillRequest) (*Outcome, error) {
	if s == nil || s.host == nil || s.store == nil || s.proxies == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "settler 未初始化")
	}

	env, err := intent.Decode(req.Encoded)
	if err != nil {
		return nil, err
	}
	if s.verifyIntentID && env.Intent.DeriveID() != req.IntentID {
		return nil, intent.ErrIDMismatch
	}

	outcome := &Outcome{
		IntentID: req.IntentID,
		Filler:   req.Filler,
		User:     env.Intent.User,
		Token:    env.Intent.Asset.Token,
		Amount:   new(big.Int).Set(env.Intent.Asset.Amount),
	}

	err = s.host.Atomically(func(tx *state.Tx) error {
		// 先拉取垫付资产：余额或授权不足时拒绝，且无任何状态变更。
		if pullErr := tx.TransferFrom(s.account, env.Intent.Asset.Token, req.Filler, s.account, env.Intent.Asset.Amount); pullErr != nil {
			return xerrors.Wrap(CodeFundingFailed, pullErr, "拉取填单方垫付资产失败")
		}

		// 结算标记的检查并置位是并发 fill 的串行化点。被拒绝时
		// 外层事务回滚已拉取的资金。
		if markErr := s.store.MarkFilled(ctx, req.IntentID); markErr != nil {
			return markErr
		}
		outcome.Settled = true

		// 将托管金额的支出权授予该用户的执行代理并发起执行。
		proxy := s.proxies.ProxyFor(env.Intent.User)
		tx.Approve(env.Intent.Asset.Token, s.account, proxy.Account(), env.Intent.Asset.Amount)

		execOutcome, execErr := proxy.Execute(ctx, tx, s.capability, req.IntentID, env.Intent, env.Authorization, s.account)

		// 无论执行结果如何都撤销剩余额度，托管账户不保留敞口。
		tx.Approve(env.Intent.Asset.Token, s.account, proxy.Account(), new(big.Int))

		switch {
		case execErr != nil:
			// 代理在消耗意图前拒绝了调用。基线设计不回滚结算标记
			// 与托管转账（见退款扩展点）。
			outcome.ExecutionError = string(xerrors.CodeOf(execErr))
			outcome.Stranded = true
		case execOutcome.Committed():
			outcome.Execution = execOutcome
		default:
			outcome.Execution = execOutcome
			outcome.Stranded = true
		}

		if outcome.Stranded && s.refunds != nil {
			if refundErr := s.refunds.HandleStranded(ctx, tx, req.IntentID, env.Intent, req.Filler); refundErr != nil {
				s.log.Error("退款补救失败", slog.Any("error", refundErr),
					slog.String("intent_id", req.IntentID.Hex()))
			} else {
				outcome.Stranded = false
			}
		}
		return nil
	})
	if err != nil {
		s.log.Debug("结算被拒绝",
			slog.String("intent_id", req.IntentID.Hex()),
			slog.String("filler", req.Filler.Hex()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.emit(ctx, outcome)
	if outcome.Stranded {
		s.alertStranded(ctx, outcome)
	}
	return outcome, nil
}

// Filled 查询某个 intentId 是否已结算。
func (s *Settler) Filled(ctx context.Context, intentID common.Hash) (bool, error) {
	if s == nil || s.store == nil {
		return false, xerrors.New(xerrors.CodeInitializationFailure, "settler 未初始化")
	}
	return s.store.Filled(ctx, intentID)
}

// Close 释放存储资源。
func (s *Settler) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *Settler) emit(ctx context.Context, outcome *Outcome) {
	logger.Audit().Info("意图结算完成",
		slog.String("intent_id", outcome.IntentID.Hex()),
		slog.String("filler", outcome.Filler.Hex()),
		slog.String("user", outcome.User.Hex()),
		slog.String("amount", outcome.Amount.String()),
		slog.Bool("stranded", outcome.Stranded),
	)
	if s.publisher == nil {
		return
	}
	event := events.NewEvent(outcome.IntentID, events.StageSettled, "settled")
	event.Filler = outcome.Filler
	event.User = outcome.User
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Error("发布结算事件失败", slog.Any("error", err),
			slog.String("intent_id", outcome.IntentID.Hex()))
	}

	stage := events.StageExecuted
	result := string(executor.StatusCommitted)
	errorCode := outcome.ExecutionError
	if outcome.Execution != nil && !outcome.Execution.Committed() {
		stage = events.StageExecutionFailed
		result = string(outcome.Execution.Status)
	} else if outcome.Execution == nil {
		stage = events.StageRejected
		result = outcome.ExecutionError
	}
	execEvent := events.NewEvent(outcome.IntentID, stage, result)
	execEvent.Filler = outcome.Filler
	execEvent.User = outcome.User
	execEvent.ErrorCode = errorCode
	if err := s.publisher.Publish(ctx, execEvent); err != nil {
		s.log.Error("发布执行事件失败", slog.Any("error", err),
			slog.String("intent_id", outcome.IntentID.Hex()))
	}
}

func (s *Settler) alertStranded(ctx context.Context, outcome *Outcome) {
	if s.alerter == nil {
		return
	}
	attrs := xerrors.AttributesOf(CodeStranded)
	event := alerting.Event{
		Code:     CodeStranded,
		Message:  attrs.Message,
		Severity: attrs.Severity,
		IntentID: outcome.IntentID.Hex(),
		Metadata: map[string]string{
			"filler": outcome.Filler.Hex(),
			"user":   outcome.User.Hex(),
			"amount": outcome.Amount.String(),
		},
		OccurredAt: time.Now(),
	}
	if err := s.alerter.Notify(ctx, event); err != nil {
		s.log.Error("告警通知失败", slog.Any("error", err),
			slog.String("intent_id", outcome.IntentID.Hex()))
	}
}
