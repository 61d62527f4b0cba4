package intent

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "IntentLane/internal/errors"
)

// Envelope 是跨域传输的线格式：意图本体加上可选的授权材料。
// Settler 与 Execution Proxy 必须以完全相同的方式解码。
type Envelope struct {
	Intent        Intent
	Authorization AuthorizationMaterial
}

// 线格式为 JSON，金额与负载使用 0x 前缀的十六进制编码，
// 由外围系统负责 schema 版本化。
type wireEnvelope struct {
	Intent        wireIntent `json:"intent"`
	Authorization *wireAuth  `json:"authorization,omitempty"`
}

type wireIntent struct {
	User                  common.Address `json:"user"`
	Token                 common.Address `json:"token"`
	Amount                *hexutil.Big   `json:"amount"`
	DomainID              uint64         `json:"domain_id"`
	DelegationFingerprint common.Hash    `json:"delegation_fingerprint"`
	Calls                 []wireCall     `json:"calls"`
}

type wireCall struct {
	Target  common.Address `json:"target"`
	Payload hexutil.Bytes  `json:"payload"`
	Value   *hexutil.Big   `json:"value,omitempty"`
}

type wireAuth struct {
	DomainID  uint64         `json:"domain_id"`
	Delegate  common.Address `json:"delegate"`
	Signature hexutil.Bytes  `json:"signature"`
}

// Encode 序列化信封为线格式字节。
func Encode(env Envelope) ([]byte, error) {
	if err := env.Intent.Validate(); err != nil {
		return nil, err
	}
	wire := wireEnvelope{
		Intent: wireIntent{
			User:                  env.Intent.User,
			Token:                 env.Intent.Asset.Token,
			Amount:                (*hexutil.Big)(amountOrZero(env.Intent.Asset.Amount)),
			DomainID:              env.Intent.DomainID,
			DelegationFingerprint: env.Intent.DelegationFingerprint,
			Calls:                 make([]wireCall, 0, len(env.Intent.Calls)),
		},
	}
	for _, call := range env.Intent.Calls {
		wire.Intent.Calls = append(wire.Intent.Calls, wireCall{
			Target:  call.Target,
			Payload: hexutil.Bytes(call.Payload),
			Value:   (*hexutil.Big)(amountOrZero(call.Value)),
		})
	}
	if !env.Authorization.Empty() {
		wire.Authorization = &wireAuth{
			DomainID:  env.Authorization.DomainID,
			Delegate:  env.Authorization.Delegate,
			Signature: hexutil.Bytes(env.Authorization.Signature),
		}
	}
	encoded, err := json.Marshal(wire)
	if err != nil {
		return nil, xerrors.Wrap(CodeMalformed, err, "编码意图失败")
	}
	return encoded, nil
}

// Decode 将线格式字节还原为信封。任何解码或校验失败都归类为 MalformedIntent。
func Decode(encoded []byte) (Envelope, error) {
	if len(encoded) == 0 {
		return Envelope{}, xerrors.New(CodeMalformed, "编码意图为空")
	}
	var wire wireEnvelope
	if err := json.Unmarshal(encoded, &wire); err != nil {
		return Envelope{}, xerrors.Wrap(CodeMalformed, err, "解码意图失败")
	}

	env := Envelope{
		Intent: Intent{
			User: wire.Intent.User,
			Asset: Asset{
				Token:  wire.Intent.Token,
				Amount: bigOrZero(wire.Intent.Amount),
			},
			DomainID:              wire.Intent.DomainID,
			DelegationFingerprint: wire.Intent.DelegationFingerprint,
			Calls:                 make([]Call, 0, len(wire.Intent.Calls)),
		},
	}
	for _, call := range wire.Intent.Calls {
		env.Intent.Calls = append(env.Intent.Calls, Call{
			Target:  call.Target,
			Payload: []byte(call.Payload),
			Value:   bigOrZero(call.Value),
		})
	}
	if wire.Authorization != nil {
		env.Authorization = AuthorizationMaterial{
			DomainID:  wire.Authorization.DomainID,
			Delegate:  wire.Authorization.Delegate,
			Signature: []byte(wire.Authorization.Signature),
		}
	}
	if err := env.Intent.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return (*big.Int)(v)
}
