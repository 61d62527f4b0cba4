package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Contract is the opaque invocation surface a call target exposes. Handlers
// mutate world state exclusively through the transaction they receive, so a
// rollback of the enclosing transaction undoes everything they did.
type Contract func(tx *Tx, caller common.Address, payload []byte, value *big.Int) error

// Host models the destination-domain execution environment: token balances
// and allowances, native value, per-account storage, and the registry of
// executable call targets. It is a serial-execution host: every settlement
// attempt runs to completion inside Atomically without interleaving.
type Host struct {
	mu        sync.Mutex
	world     *world
	contracts map[common.Address]Contract
}

// world carries all mutable state so savepoints can deep-copy it wholesale.
type world struct {
	balances   map[common.Address]map[common.Address]*big.Int                    // token -> holder
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int // token -> owner -> spender
	native     map[common.Address]*big.Int
	storage    map[common.Address]map[string][]byte
}

// NewHost constructs an empty host.
func NewHost() *Host {
	return &Host{
		world:     newWorld(),
		contracts: make(map[common.Address]Contract),
	}
}

// RegisterContract installs executable code at the given address. Code is
// wiring-time configuration and is not covered by savepoints.
func (h *Host) RegisterContract(addr common.Address, contract Contract) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if contract == nil {
		delete(h.contracts, addr)
		return
	}
	h.contracts[addr] = contract
}

// Atomically runs fn against a transaction under the host's serial lock.
// When fn returns an error every mutation made through the transaction is
// discarded; otherwise it commits. There is no suspension point inside fn as
// observed by any other caller.
func (h *Host) Atomically(fn func(tx *Tx) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx := &Tx{host: h, world: h.world.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	h.world = tx.world
	return nil
}

// Tx is a mutable view of the world scoped to one settlement attempt. It is
// not safe for concurrent use; Atomically hands each caller its own.
type Tx struct {
	host  *Host
	world *world
}

// Savepoint records the current state and returns an identifier that can be
// handed to RollbackTo. Savepoints nest.
type Savepoint struct {
	snapshot *world
}

// Savepoint captures the transaction state.
func (tx *Tx) Savepoint() Savepoint {
	return Savepoint{snapshot: tx.world.clone()}
}

// RollbackTo restores the state captured by the savepoint.
func (tx *Tx) RollbackTo(sp Savepoint) {
	tx.world = sp.snapshot
}

// Mint credits the holder with amount of token. Used by genesis wiring and
// tests.
func (tx *Tx) Mint(token, holder common.Address, amount *big.Int) {
	balance := tx.world.balance(token, holder)
	balance.Add(balance, amount)
}

// MintNative credits the account with native value.
func (tx *Tx) MintNative(account common.Address, amount *big.Int) {
	balance := tx.world.nativeBalance(account)
	balance.Add(balance, amount)
}

// BalanceOf returns a copy of the holder's token balance.
func (tx *Tx) BalanceOf(token, holder common.Address) *big.Int {
	return new(big.Int).Set(tx.world.balance(token, holder))
}

// NativeBalanceOf returns a copy of the account's native balance.
func (tx *Tx) NativeBalanceOf(account common.Address) *big.Int {
	return new(big.Int).Set(tx.world.nativeBalance(account))
}

// Approve grants spender authority over amount of owner's token balance,
// replacing any previous allowance.
func (tx *Tx) Approve(token, owner, spender common.Address, amount *big.Int) {
	tx.world.setAllowance(token, owner, spender, new(big.Int).Set(amount))
}

// Allowance returns a copy of the spender's remaining allowance.
func (tx *Tx) Allowance(token, owner, spender common.Address) *big.Int {
	return new(big.Int).Set(tx.world.allowance(token, owner, spender))
}

// TransferFrom moves amount of token from source to destination on behalf of
// caller. A caller other than the source spends from its allowance. The
// transfer either applies fully or fails with no partial effect.
func (tx *Tx) TransferFrom(caller, token, source, destination common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance := tx.world.balance(token, source)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: have %s, need %s", balance, amount)
	}
	if caller != source {
		allowance := tx.world.allowance(token, source, caller)
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("insufficient allowance: have %s, need %s", allowance, amount)
		}
		allowance.Sub(allowance, amount)
	}
	balance.Sub(balance, amount)
	dest := tx.world.balance(token, destination)
	dest.Add(dest, amount)
	return nil
}

// HasCode reports whether executable code is present at the address.
func (tx *Tx) HasCode(addr common.Address) bool {
	_, ok := tx.host.contracts[addr]
	return ok
}

// Invoke dispatches an opaque call from caller to target, moving the attached
// native value first. A missing handler with an empty payload is a plain
// value transfer; a failing handler surfaces its error to the executor, which
// owns the rollback decision.
func (tx *Tx) Invoke(caller, target common.Address, payload []byte, value *big.Int) error {
	if value != nil && value.Sign() > 0 {
		balance := tx.world.nativeBalance(caller)
		if balance.Cmp(value) < 0 {
			return fmt.Errorf("insufficient native balance: have %s, need %s", balance, value)
		}
		balance.Sub(balance, value)
		dest := tx.world.nativeBalance(target)
		dest.Add(dest, value)
	}
	contract, ok := tx.host.contracts[target]
	if !ok {
		return nil
	}
	return contract(tx, caller, payload, value)
}

// GetStorage returns the value stored under key for the account, or nil.
func (tx *Tx) GetStorage(account common.Address, key string) []byte {
	slots, ok := tx.world.storage[account]
	if !ok {
		return nil
	}
	value, ok := slots[key]
	if !ok {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

// SetStorage writes the value under key for the account.
func (tx *Tx) SetStorage(account common.Address, key string, value []byte) {
	slots, ok := tx.world.storage[account]
	if !ok {
		slots = make(map[string][]byte)
		tx.world.storage[account] = slots
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	slots[key] = stored
}

func newWorld() *world {
	return &world{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		native:     make(map[common.Address]*big.Int),
		storage:    make(map[common.Address]map[string][]byte),
	}
}

func (w *world) clone() *world {
	cloned := newWorld()
	for token, holders := range w.balances {
		dst := make(map[common.Address]*big.Int, len(holders))
		for holder, amount := range holders {
			dst[holder] = new(big.Int).Set(amount)
		}
		cloned.balances[token] = dst
	}
	for token, owners := range w.allowances {
		dstOwners := make(map[common.Address]map[common.Address]*big.Int, len(owners))
		for owner, spenders := range owners {
			dst := make(map[common.Address]*big.Int, len(spenders))
			for spender, amount := range spenders {
				dst[spender] = new(big.Int).Set(amount)
			}
			dstOwners[owner] = dst
		}
		cloned.allowances[token] = dstOwners
	}
	for account, amount := range w.native {
		cloned.native[account] = new(big.Int).Set(amount)
	}
	for account, slots := range w.storage {
		dst := make(map[string][]byte, len(slots))
		for key, value := range slots {
			copied := make([]byte, len(value))
			copy(copied, value)
			dst[key] = copied
		}
		cloned.storage[account] = dst
	}
	return cloned
}

func (w *world) balance(token, holder common.Address) *big.Int {
	holders, ok := w.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		w.balances[token] = holders
	}
	amount, ok := holders[holder]
	if !ok {
		amount = new(big.Int)
		holders[holder] = amount
	}
	return amount
}

func (w *world) nativeBalance(account common.Address) *big.Int {
	amount, ok := w.native[account]
	if !ok {
		amount = new(big.Int)
		w.native[account] = amount
	}
	return amount
}

func (w *world) allowance(token, owner, spender common.Address) *big.Int {
	owners, ok := w.allowances[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]*big.Int)
		w.allowances[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		owners[owner] = spenders
	}
	amount, ok := spenders[spender]
	if !ok {
		amount = new(big.Int)
		spenders[spender] = amount
	}
	return amount
}

func (w *world) setAllowance(token, owner, spender common.Address, amount *big.Int) {
	owners, ok := w.allowances[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]*big.Int)
		w.allowances[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		owners[owner] = spenders
	}
	spenders[spender] = amount
}
