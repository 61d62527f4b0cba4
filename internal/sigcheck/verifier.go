package sigcheck

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verifier 抽象了签名验证能力：既支持直接的私钥签名，
// 也支持按身份注册的合约式验证方案。调用方将其视为黑盒。
type Verifier interface {
	IsValidSignature(identity common.Address, digest common.Hash, signature []byte) bool
}

// ContractVerifier 表示某个身份自带的验证逻辑（例如智能合约钱包）。
type ContractVerifier func(digest common.Hash, signature []byte) bool

// Registry 组合了 secp256k1 恢复验证与按身份注册的合约验证器。
type Registry struct {
	mu        sync.RWMutex
	contracts map[common.Address]ContractVerifier
}

// NewRegistry 创建空的验证器注册表。
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[common.Address]ContractVerifier)}
}

// RegisterContract 为某个身份登记合约式验证逻辑。
func (r *Registry) RegisterContract(identity common.Address, verifier ContractVerifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if verifier == nil {
		delete(r.contracts, identity)
		return
	}
	r.contracts[identity] = verifier
}

// IsValidSignature 实现 Verifier。优先使用身份注册的合约验证器，
// 否则回退到 ECDSA 公钥恢复比对。
func (r *Registry) IsValidSignature(identity common.Address, digest common.Hash, signature []byte) bool {
	r.mu.RLock()
	contract, ok := r.contracts[identity]
	r.mu.RUnlock()
	if ok {
		return contract(digest, signature)
	}
	return RecoverMatches(identity, digest, signature)
}

// RecoverMatches 对 65 字节的 secp256k1 签名做公钥恢复，
// 并比对恢复出的地址是否为给定身份。兼容 27/28 形式的 V 值。
func RecoverMatches(identity common.Address, digest common.Hash, signature []byte) bool {
	if len(signature) != crypto.SignatureLength {
		return false
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pubkey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pubkey) == identity
}

var _ Verifier = (*Registry)(nil)
