package config

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Definitions 是目标域的 YAML 域定义：域的元数据、已知代币以及创世
// 状态。创世状态在守护进程启动时写入执行环境，用于预置填单方余额与
// 托管授权。
type Definitions struct {
	Domain  DomainMeta   `yaml:"domain"`
	Tokens  []TokenDef   `yaml:"tokens"`
	Genesis GenesisState `yaml:"genesis"`
}

// DomainMeta 描述域的标识信息。ID 必须与主配置中的 domain.id 一致。
type DomainMeta struct {
	ID   uint64 `yaml:"id"`
	Name string `yaml:"name"`
}

// TokenDef 登记一个已知代币。
type TokenDef struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// GenesisState 是启动时灌入执行环境的初始状态。
type GenesisState struct {
	Balances  []BalanceDef  `yaml:"balances"`
	Native    []NativeDef   `yaml:"native"`
	Approvals []ApprovalDef `yaml:"approvals"`
}

// BalanceDef 预置某持有人的代币余额。
type BalanceDef struct {
	Token  string `yaml:"token"`
	Holder string `yaml:"holder"`
	Amount string `yaml:"amount"`
}

// NativeDef 预置某账户的原生余额。
type NativeDef struct {
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// ApprovalDef 预置一条支出授权，常用于填单方向托管账户授予拉款额度。
type ApprovalDef struct {
	Token   string `yaml:"token"`
	Owner   string `yaml:"owner"`
	Spender string `yaml:"spender"`
	Amount  string `yaml:"amount"`
}

// LoadDefinitions 解析 YAML 域定义文件并做结构校验。
func LoadDefinitions(path string) (*Definitions, error) {
	if path == "" {
		return nil, fmt.Errorf("域定义文件路径为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取域定义文件失败: %w", err)
	}
	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, fmt.Errorf("解析域定义失败: %w", err)
	}
	if err := defs.validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

func (d *Definitions) validate() error {
	for i, token := range d.Tokens {
		if !common.IsHexAddress(token.Address) {
			return fmt.Errorf("tokens[%d].address 非法: %s", i, token.Address)
		}
	}
	for i, balance := range d.Genesis.Balances {
		if !common.IsHexAddress(balance.Token) || !common.IsHexAddress(balance.Holder) {
			return fmt.Errorf("genesis.balances[%d] 地址非法", i)
		}
		if _, err := parseAmount(balance.Amount); err != nil {
			return fmt.Errorf("genesis.balances[%d].amount 非法: %w", i, err)
		}
	}
	for i, native := range d.Genesis.Native {
		if !common.IsHexAddress(native.Account) {
			return fmt.Errorf("genesis.native[%d].account 非法", i)
		}
		if _, err := parseAmount(native.Amount); err != nil {
			return fmt.Errorf("genesis.native[%d].amount 非法: %w", i, err)
		}
	}
	for i, approval := range d.Genesis.Approvals {
		if !common.IsHexAddress(approval.Token) || !common.IsHexAddress(approval.Owner) {
			return fmt.Errorf("genesis.approvals[%d] 地址非法", i)
		}
		if approval.Spender != "" && approval.Spender != "escrow" && !common.IsHexAddress(approval.Spender) {
			return fmt.Errorf("genesis.approvals[%d].spender 非法", i)
		}
		if _, err := parseAmount(approval.Amount); err != nil {
			return fmt.Errorf("genesis.approvals[%d].amount 非法: %w", i, err)
		}
	}
	return nil
}

// AmountBig 解析十进制金额字符串。
func (b BalanceDef) AmountBig() *big.Int {
	amount, _ := parseAmount(b.Amount)
	return amount
}

// AmountBig 解析十进制金额字符串。
func (n NativeDef) AmountBig() *big.Int {
	amount, _ := parseAmount(n.Amount)
	return amount
}

// AmountBig 解析十进制金额字符串。
func (a ApprovalDef) AmountBig() *big.Int {
	amount, _ := parseAmount(a.Amount)
	return amount
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("无法解析的金额 %q", raw)
	}
	return amount, nil
}
