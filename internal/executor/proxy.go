package executor

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "IntentLane/internal/errors"
	"IntentLane/internal/intent"
	"IntentLane/internal/sigcheck"
	"IntentLane/internal/state"
	"IntentLane/pkg/logger"
)

// Status 是一次 execute 调用的终态。除 StatusCommitted 外的所有终态都
// 已经消耗了 intentId：执行标记保持置位，链上效果已整体回滚。
type Status string

const (
	StatusCommitted     Status = "committed"
	StatusWrongDomain   Status = "wrong_domain"
	StatusInvalidAuth   Status = "invalid_authorization"
	StatusFundingFailed Status = "funding_failed"
	StatusInvalidCall   Status = "invalid_call"
	StatusCallReverted  Status = "call_reverted"
)

// Outcome 汇总一次 execute 的结果。FailedCall 仅在调用批次失败时有效。
type Outcome struct {
	IntentID   common.Hash `json:"intent_id"`
	Status     Status      `json:"status"`
	FailedCall int         `json:"failed_call,omitempty"`
}

// Committed 报告调用批次与注资是否整体提交。
func (o Outcome) Committed() bool {
	return o.Status == StatusCommitted
}

var (
	// ErrAlreadyExecuted 表示 intentId 已被该代理执行过。
	ErrAlreadyExecuted = xerrors.New(CodeAlreadyExecuted, "intent already executed")
	// ErrUnauthorizedCaller 表示调用方未持有有效的能力令牌。
	ErrUnauthorizedCaller = xerrors.New(CodeUnauthorizedCaller, "caller lacks execute capability",
		xerrors.WithSeverity(xerrors.SeverityWarning))
)

const (
	CodeAlreadyExecuted    xerrors.Code = "EXECUTION_ALREADY_EXECUTED"
	CodeUnauthorizedCaller xerrors.Code = "EXECUTION_UNAUTHORIZED_CALLER"
	CodeWrongDomain        xerrors.Code = "EXECUTION_WRONG_DOMAIN"
	CodeInvalidAuth        xerrors.Code = "EXECUTION_INVALID_AUTHORIZATION"
	CodeFundingFailed      xerrors.Code = "EXECUTION_FUNDING_FAILED"
	CodeInvalidCall        xerrors.Code = "EXECUTION_INVALID_CALL"
	CodeCallReverted       xerrors.Code = "EXECUTION_CALL_REVERTED"
)

func init() {
	xerrors.Register(CodeAlreadyExecuted, xerrors.Attributes{
		Message:   "intent already executed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeUnauthorizedCaller, xerrors.Attributes{
		Message:   "caller lacks execute capability",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeWrongDomain, xerrors.Attributes{
		Message:   "intent scoped to another domain",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInvalidAuth, xerrors.Attributes{
		Message:   "invalid authorization material",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeFundingFailed, xerrors.Attributes{
		Message:   "user funding transfer failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeInvalidCall, xerrors.Attributes{
		Message:   "call targets an account without code",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeCallReverted, xerrors.Attributes{
		Message:   "call batch reverted",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Proxy 是绑定到单一用户身份的执行代理。它验证授权材料、向用户转入
// 托管资金，并以全有或全无的方式执行用户的调用批次。
type Proxy struct {
	user       common.Address
	account    common.Address
	domainID   uint64
	store      ExecutionStore
	verifier   sigcheck.Verifier
	capability Capability

	// strictFingerprint 开启后会将意图携带的 delegationFingerprint
	// 与本代理的实际身份绑定做交叉比对。默认关闭。
	strictFingerprint bool

	log *slog.Logger
}

// ProxyOption 定义可选配置。
type ProxyOption func(*Proxy)

// WithStrictFingerprint 开启委托指纹交叉校验。
func WithStrictFingerprint(strict bool) ProxyOption {
	return func(p *Proxy) {
		p.strictFingerprint = strict
	}
}

// WithProxyLogger 指定日志输出。
func WithProxyLogger(log *slog.Logger) ProxyOption {
	return func(p *Proxy) {
		p.log = log
	}
}

// NewProxy 为指定用户构造执行代理。capability 是调用 Execute 的唯一凭证。
func NewProxy(user common.Address, domainID uint64, store ExecutionStore, verifier sigcheck.Verifier, capability Capability, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		user:       user,
		account:    DeriveProxyAccount(user),
		domainID:   domainID,
		store:      store,
		verifier:   verifier,
		capability: capability,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.log == nil {
		p.log = logger.Named("executor")
	}
	return p
}

// User 返回代理绑定的用户身份。
func (p *Proxy) User() common.Address { return p.user }

// Account 返回代理自身在目标域上的身份。
func (p *Proxy) Account() common.Address { return p.account }

// DeriveProxyAccount 从用户身份确定性地推导代理账户地址。
func DeriveProxyAccount(user common.Address) common.Address {
	digest := crypto.Keccak256([]byte("IntentLane proxy v1"), user.Bytes())
	return common.BytesToAddress(digest[12:])
}

// Fingerprint 返回代理当前身份绑定的指纹，与意图中携带的
// delegationFingerprint 同构。
func (p *Proxy) Fingerprint() common.Hash {
	return crypto.Keccak256Hash(p.account.Bytes(), appendUint64(nil, p.domainID))
}

// Execute 以用户授权执行意图。fundSource 是托管资金的来源账户（即
// Settler），必须事先授予本代理足额的支出额度。
//
// 返回非空 Outcome 表示 intentId 已被消耗（执行标记置位）；返回 error
// 表示调用被拒绝且未消耗意图（能力校验失败、重复执行或存储故障）。
func (p *Proxy) Execute(ctx context.Context, tx *state.Tx, capability Capability, intentID common.Hash, in intent.Intent, auth intent.AuthorizationMaterial, fundSource common.Address) (*Outcome, error) {
	if p == nil || p.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "执行代理未初始化")
	}
	if !p.capability.Grants(capability) {
		return nil, ErrUnauthorizedCaller
	}
	if in.User != p.user {
		return nil, xerrors.New(CodeInvalidAuth, "意图的用户与代理绑定的身份不符")
	}

	// 先置位执行标记，关闭重入与重放窗口。此后所有失败都保持标记不变。
	if err := p.store.MarkExecuted(ctx, intentID); err != nil {
		return nil, err
	}

	outcome := &Outcome{IntentID: intentID}

	if in.DomainID != p.domainID {
		outcome.Status = StatusWrongDomain
		p.auditOutcome(outcome, "意图的目标域不匹配")
		return outcome, nil
	}

	if !auth.Empty() {
		if !p.verifyAuthorization(in.User, auth) {
			outcome.Status = StatusInvalidAuth
			p.auditOutcome(outcome, "授权材料校验失败")
			return outcome, nil
		}
	}
	if p.strictFingerprint && in.DelegationFingerprint != p.Fingerprint() {
		outcome.Status = StatusInvalidAuth
		p.auditOutcome(outcome, "委托指纹与实际绑定不符")
		return outcome, nil
	}

	// 注资与调用批次共享同一个事务边界：任何一步失败都整体回滚，
	// 只有执行标记保持置位。
	savepoint := tx.Savepoint()

	if err := tx.TransferFrom(p.account, in.Asset.Token, fundSource, in.User, in.Asset.Amount); err != nil {
		tx.RollbackTo(savepoint)
		outcome.Status = StatusFundingFailed
		p.auditOutcome(outcome, err.Error())
		return outcome, nil
	}

	for i, call := range in.Calls {
		if len(call.Payload) > 0 && !tx.HasCode(call.Target) {
			tx.RollbackTo(savepoint)
			outcome.Status = StatusInvalidCall
			outcome.FailedCall = i
			p.auditOutcome(outcome, "调用目标不存在可执行代码")
			return outcome, nil
		}
		if err := tx.Invoke(in.User, call.Target, call.Payload, call.Value); err != nil {
			tx.RollbackTo(savepoint)
			outcome.Status = StatusCallReverted
			outcome.FailedCall = i
			p.auditOutcome(outcome, err.Error())
			return outcome, nil
		}
	}

	outcome.Status = StatusCommitted
	logger.Audit().Info("意图执行成功",
		slog.String("intent_id", intentID.Hex()),
		slog.String("user", in.User.Hex()),
		slog.Int("calls", len(in.Calls)),
	)
	return outcome, nil
}

// verifyAuthorization 校验授权材料：签名必须出自意图的用户，
// 且断言的域与委托目标必须指向本代理。
func (p *Proxy) verifyAuthorization(user common.Address, auth intent.AuthorizationMaterial) bool {
	if auth.DomainID != p.domainID {
		return false
	}
	if auth.Delegate != p.account {
		return false
	}
	if p.verifier == nil {
		return false
	}
	digest := intent.DelegationDigest(user, auth.DomainID, auth.Delegate)
	return p.verifier.IsValidSignature(user, digest, auth.Signature)
}

func (p *Proxy) auditOutcome(outcome *Outcome, reason string) {
	logger.Audit().Warn("意图执行终止",
		slog.String("intent_id", outcome.IntentID.Hex()),
		slog.String("user", p.user.Hex()),
		slog.String("status", string(outcome.Status)),
		slog.String("failed_call", strconv.Itoa(outcome.FailedCall)),
		slog.String("reason", reason),
	)
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
