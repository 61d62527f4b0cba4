package intent

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "IntentLane/internal/errors"
)

// Asset describes the funding leg of an intent: the token the filler must
// advance on the destination domain and the amount the user reimburses from
// escrow.
type Asset struct {
	Token  common.Address
	Amount *big.Int
}

// Call is a single delegated invocation inside an intent's batch. Order
// matters; batches execute sequentially and are not reorderable.
type Call struct {
	Target  common.Address
	Payload []byte
	Value   *big.Int
}

// Intent is a user's signed declaration of funding plus a call batch to be
// executed on a specific destination domain. It is produced on the origin
// domain and consumed here as decoded wire data.
type Intent struct {
	User                  common.Address
	Asset                 Asset
	DomainID              uint64
	DelegationFingerprint common.Hash
	Calls                 []Call
}

// AuthorizationMaterial is optional origin-signed evidence binding the user's
// identity to a destination-domain execution authority. An empty material
// means the binding was established out of band.
type AuthorizationMaterial struct {
	DomainID  uint64
	Delegate  common.Address
	Signature []byte
}

// Empty reports whether no authorization evidence was supplied.
func (m AuthorizationMaterial) Empty() bool {
	return len(m.Signature) == 0
}

var (
	// ErrMalformed 表示编码的意图无法解码或字段非法。
	ErrMalformed = xerrors.New(CodeMalformed, "malformed intent")
	// ErrIDMismatch 表示调用方声明的 intentId 与重新推导的结果不一致。
	ErrIDMismatch = xerrors.New(CodeMalformed, "intent id mismatch")
)

const (
	CodeMalformed xerrors.Code = "INTENT_MALFORMED"
)

func init() {
	xerrors.Register(CodeMalformed, xerrors.Attributes{
		Message:   "malformed intent",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Validate checks the structural invariants every decoded intent must hold
// before it may enter settlement.
func (in *Intent) Validate() error {
	if in == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "intent 不能为空")
	}
	if in.User == (common.Address{}) {
		return xerrors.New(CodeMalformed, "意图缺少用户身份")
	}
	if in.Asset.Amount == nil || in.Asset.Amount.Sign() < 0 {
		return xerrors.New(CodeMalformed, "意图资产金额非法")
	}
	if in.Asset.Amount.Sign() > 0 && in.Asset.Token == (common.Address{}) {
		return xerrors.New(CodeMalformed, "意图资产缺少代币地址")
	}
	for i, call := range in.Calls {
		if call.Target == (common.Address{}) {
			return xerrors.New(CodeMalformed, "调用目标不能为空地址",
				xerrors.WithMetadata("call_index", itoa(i)))
		}
		if call.Value != nil && call.Value.Sign() < 0 {
			return xerrors.New(CodeMalformed, "调用转账金额非法",
				xerrors.WithMetadata("call_index", itoa(i)))
		}
	}
	return nil
}

// DeriveID computes the stable identifier of the intent from its canonical
// byte packing. The packing is length-prefixed per call so distinct batches
// can never collide.
func (in *Intent) DeriveID() common.Hash {
	var buf []byte
	buf = append(buf, in.User.Bytes()...)
	buf = append(buf, in.Asset.Token.Bytes()...)
	buf = append(buf, common.BigToHash(amountOrZero(in.Asset.Amount)).Bytes()...)
	buf = appendUint64(buf, in.DomainID)
	buf = append(buf, in.DelegationFingerprint.Bytes()...)
	buf = appendUint64(buf, uint64(len(in.Calls)))
	for _, call := range in.Calls {
		buf = append(buf, call.Target.Bytes()...)
		buf = append(buf, crypto.Keccak256(call.Payload)...)
		buf = append(buf, common.BigToHash(amountOrZero(call.Value)).Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}

// DelegationDigest is the message digest the user signs on the origin domain
// to bind their identity to the given execution authority on the given
// destination domain.
func DelegationDigest(user common.Address, domainID uint64, delegate common.Address) common.Hash {
	var buf []byte
	buf = append(buf, []byte("IntentLane delegation v1")...)
	buf = appendUint64(buf, domainID)
	buf = append(buf, delegate.Bytes()...)
	buf = append(buf, user.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], v)
	return append(buf, scratch[:]...)
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func itoa(i int) string {
	return big.NewInt(int64(i)).String()
}
