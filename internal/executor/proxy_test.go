package executor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"IntentLane/internal/intent"
	"IntentLane/internal/sigcheck"
	"IntentLane/internal/state"
)

const testDomainID = 7

var (
	testToken  = common.HexToAddress("0x1001")
	fundSource = common.HexToAddress("0xe5c0")
)

type proxyHarness struct {
	host       *state.Host
	store      *MemoryExecutionStore
	capability Capability
	key        *ecdsa.PrivateKey
	user       common.Address
	proxy      *Proxy
}

func newProxyHarness(t *testing.T, opts ...ProxyOption) *proxyHarness {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	user := crypto.PubkeyToAddress(key.PublicKey)

	capability, err := NewCapability()
	if err != nil {
		t.Fatalf("mint capability: %v", err)
	}

	store := NewMemoryExecutionStore()
	proxy := NewProxy(user, testDomainID, store, sigcheck.NewRegistry(), capability, opts...)

	return &proxyHarness{
		host:       state.NewHost(),
		store:      store,
		capability: capability,
		key:        key,
		user:       user,
		proxy:      proxy,
	}
}

// fund seeds the escrow account and grants the proxy spending authority.
func (h *proxyHarness) fund(t *testing.T, amount int64) {
	t.Helper()
	err := h.host.Atomically(func(tx *state.Tx) error {
		tx.Mint(testToken, fundSource, big.NewInt(amount))
		tx.Approve(testToken, fundSource, h.proxy.Account(), big.NewInt(amount))
		return nil
	})
	if err != nil {
		t.Fatalf("fund escrow: %v", err)
	}
}

func (h *proxyHarness) sampleIntent(amount int64, calls ...intent.Call) intent.Intent {
	return intent.Intent{
		User: h.user,
		Asset: intent.Asset{
			Token:  testToken,
			Amount: big.NewInt(amount),
		},
		DomainID: testDomainID,
		Calls:    calls,
	}
}

// signAuthorization produces authorization material the proxy accepts.
func (h *proxyHarness) signAuthorization(t *testing.T) intent.AuthorizationMaterial {
	t.Helper()
	digest := intent.DelegationDigest(h.user, testDomainID, h.proxy.Account())
	signature, err := crypto.Sign(digest.Bytes(), h.key)
	if err != nil {
		t.Fatalf("sign delegation: %v", err)
	}
	return intent.AuthorizationMaterial{
		DomainID:  testDomainID,
		Delegate:  h.proxy.Account(),
		Signature: signature,
	}
}

func (h *proxyHarness) execute(t *testing.T, in intent.Intent, auth intent.AuthorizationMaterial) (*Outcome, error) {
	t.Helper()
	var (
		outcome *Outcome
		execErr error
	)
	err := h.host.Atomically(func(tx *state.Tx) error {
		outcome, execErr = h.proxy.Execute(context.Background(), tx, h.capability, in.DeriveID(), in, auth, fundSource)
		return nil
	})
	if err != nil {
		t.Fatalf("atomically: %v", err)
	}
	return outcome, execErr
}

func (h *proxyHarness) balanceOf(t *testing.T, holder common.Address) *big.Int {
	t.Helper()
	var balance *big.Int
	_ = h.host.Atomically(func(tx *state.Tx) error {
		balance = tx.BalanceOf(testToken, holder)
		return nil
	})
	return balance
}

func TestExecuteCommitsFundedCallBatch(t *testing.T) {
	h := newProxyHarness(t)
	h.fund(t, 100)

	target := common.HexToAddress("0xc0de")
	invoked := false
	h.host.RegisterContract(target, func(tx *state.Tx, caller common.Address, payload []byte, value *big.Int) error {
		if caller != h.user {
			t.Fatalf("handler caller %s, want user %s", caller.Hex(), h.user.Hex())
		}
		invoked = true
		return nil
	})

	in := h.sampleIntent(100, intent.Call{Target: target, Payload: []byte{0x01}})
	outcome, err := h.execute(t, in, h.signAuthorization(t))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !outcome.Committed() {
		t.Fatalf("expected committed outcome, got %s", outcome.Status)
	}
	if !invoked {
		t.Fatal("registered handler never ran")
	}
	if got := h.balanceOf(t, h.user); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("user balance after funding: got %s, want 100", got)
	}
	if got := h.balanceOf(t, fundSource); got.Sign() != 0 {
		t.Fatalf("escrow balance after funding: got %s, want 0", got)
	}
}

func TestExecuteIsAtMostOnce(t *testing.T) {
	h := newProxyHarness(t)
	h.fund(t, 200)

	in := h.sampleIntent(100)
	auth := h.signAuthorization(t)

	if outcome, err := h.execute(t, in, auth); err != nil || !outcome.Committed() {
		t.Fatalf("first execute: outcome=%v err=%v", outcome, err)
	}

	outcome, err := h.execute(t, in, auth)
	if !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("expected ErrAlreadyExecuted, got outcome=%v err=%v", outcome, err)
	}
	if got := h.balanceOf(t, h.user); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("replay moved funds: user balance %s", got)
	}
}

func TestExecuteRejectsMissingCapability(t *testing.T) {
	h := newProxyHarness(t)
	in := h.sampleIntent(10)

	var (
		outcome *Outcome
		execErr error
	)
	_ = h.host.Atomically(func(tx *state.Tx) error {
		outcome, execErr = h.proxy.Execute(context.Background(), tx, Capability{}, in.DeriveID(), in, intent.AuthorizationMaterial{}, fundSource)
		return nil
	})
	if !errors.Is(execErr, ErrUnauthorizedCaller) {
		t.Fatalf("expected ErrUnauthorizedCaller, got outcome=%v err=%v", outcome, execErr)
	}

	// A rejected caller must not consume the intent.
	executed, err := h.store.Executed(context.Background(), in.DeriveID())
	if err != nil {
		t.Fatalf("executed lookup: %v", err)
	}
	if executed {
		t.Fatal("unauthorized caller consumed the intent")
	}
}

func TestExecuteWrongDomainConsumesIntent(t *testing.T) {
	h := newProxyHarness(t)
	h.fund(t, 100)

	in := h.sampleIntent(100)
	in.DomainID = testDomainID + 1

	outcome, err := h.execute(t, in, h.signAuthorization(t))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != StatusWrongDomain {
		t.Fatalf("expected wrong_domain, got %s", outcome.Status)
	}
	executed, _ := h.store.Executed(context.Background(), in.DeriveID())
	if !executed {
		t.Fatal("wrong-domain intent must still be consumed")
	}
	if got := h.balanceOf(t, h.user); got.Sign() != 0 {
		t.Fatalf("wrong-domain intent moved funds: %s", got)
	}
}

func TestExecuteRejectsForgedAuthorization(t *testing.T) {
	h := newProxyHarness(t)
	h.fund(t, 100)

	forger, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := intent.DelegationDigest(h.user, testDomainID, h.proxy.Account())
	signature, err := crypto.Sign(digest.Bytes(), forger)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	in := h.sampleIntent(100)
	outcome, execErr := h.execute(t, in, intent.AuthorizationMaterial{
		DomainID:  testDomainID,
		Delegate:  h.proxy.Account(),
		Signature: signature,
	})
	if execErr != nil {
		t.Fatalf("execute: %v", execErr)
	}
	if outcome.Status != StatusInvalidAuth {
		t.Fatalf("expected invalid_authorization, got %s", outcome.Status)
	}
	if got := h.balanceOf(t, h.user); got.Sign() != 0 {
		t.Fatalf("forged authorization moved funds: %s", got)
	}
}

func TestExecuteRejectsAuthorizationForOtherDelegate(t *testing.T) {
	h := newProxyHarness(t)
	h.fund(t, 100)

	auth := h.signAuthorization(t)
	auth.Delegate = common.HexToAddress("0xdead")

	outcome, err := h.execute(t, h.sampleIntent(100), auth)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != StatusInvalidAuth {
		t.Fatalf("expected invalid_authorization, got %s", outcome.Status)
	}
}

func TestExecuteFundingFailureRollsBack(t *testing.T) {
	h := newProxyHarness(t)
	// Escrow is seeded but no spending allowance is granted.
	err := h.host.Atomically(func(tx *state.Tx) error {
		tx.Mint(testToken, fundSource, big.NewInt(100))
		return nil
	})
	if err != nil {
		t.Fatalf("seed escrow: %v", err)
	}

	outcome, execErr := h.execute(t, h.sampleIntent(100), h.signAuthorization(t))
	if execErr != nil {
		t.Fatalf("execute: %v", execErr)
	}
	if outcome.Status != StatusFundingFailed {
		t.Fatalf("expected funding_failed, got %s", outcome.Status)
	}
	if got := h.balanceOf(t, fundSource); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("escrow balance changed on failed funding: %s", got)
	}
}

func TestExecuteRejectsCallsToAccountsWithoutCode(t *testing.T) {
	h := newProxyHarness(t)
	h.fund(t, 100)

	in := h.sampleIntent(100, intent.Call{
		Target:  common.HexToAddress("0xbeef"),
		Payload: []byte{0x01},
	})
	outcome, err := h.execute(t, in, h.signAuthorization(t))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != StatusInvalidCall {
		t.Fatalf("expected invalid_call, got %s", outcome.Status)
	}
	if outcome.FailedCall != 0 {
		t.Fatalf("expected failed_call 0, got %d", outcome.FailedCall)
	}
	// The funding transfer is undone together with the rejected batch.
	if got := h.balanceOf(t, h.user); got.Sign() != 0 {
		t.Fatalf("rejected batch left funds with the user: %s", got)
	}
}

func TestExecuteRevertUndoesPartialProgress(t *testing.T) {
	h := newProxyHarness(t)
	h.fund(t, 100)

	okTarget := common.HexToAddress("0xc0de")
	badTarget := common.HexToAddress("0xbad0")
	h.host.RegisterContract(okTarget, func(tx *state.Tx, caller common.Address, payload []byte, value *big.Int) error {
		tx.SetStorage(okTarget, "touched", []byte{0x01})
		return nil
	})
	h.host.RegisterContract(badTarget, func(tx *state.Tx, caller common.Address, payload []byte, value *big.Int) error {
		return errors.New("revert")
	})

	in := h.sampleIntent(100,
		intent.Call{Target: okTarget, Payload: []byte{0x01}},
		intent.Call{Target: badTarget, Payload: []byte{0x02}},
	)
	outcome, err := h.execute(t, in, h.signAuthorization(t))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != StatusCallReverted {
		t.Fatalf("expected call_reverted, got %s", outcome.Status)
	}
	if outcome.FailedCall != 1 {
		t.Fatalf("expected failed_call 1, got %d", outcome.FailedCall)
	}

	_ = h.host.Atomically(func(tx *state.Tx) error {
		if tx.GetStorage(okTarget, "touched") != nil {
			t.Fatal("first call's storage write survived the revert")
		}
		return nil
	})
	if got := h.balanceOf(t, fundSource); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("escrow balance changed on reverted batch: %s", got)
	}
}

func TestExecuteStrictFingerprint(t *testing.T) {
	h := newProxyHarness(t, WithStrictFingerprint(true))
	h.fund(t, 200)

	mismatched := h.sampleIntent(100)
	mismatched.DelegationFingerprint = common.HexToHash("0x01")
	outcome, err := h.execute(t, mismatched, h.signAuthorization(t))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Status != StatusInvalidAuth {
		t.Fatalf("expected invalid_authorization for stale fingerprint, got %s", outcome.Status)
	}

	matched := h.sampleIntent(100)
	matched.DelegationFingerprint = h.proxy.Fingerprint()
	outcome, err = h.execute(t, matched, h.signAuthorization(t))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !outcome.Committed() {
		t.Fatalf("expected committed outcome for matching fingerprint, got %s", outcome.Status)
	}
}

func TestDeriveProxyAccountIsStable(t *testing.T) {
	user := common.HexToAddress("0xa11c")
	first := DeriveProxyAccount(user)
	if first == (common.Address{}) {
		t.Fatal("derived empty proxy account")
	}
	if DeriveProxyAccount(user) != first {
		t.Fatal("derivation is not deterministic")
	}
	if DeriveProxyAccount(common.HexToAddress("0xb0b0")) == first {
		t.Fatal("distinct users share a proxy account")
	}
}

func TestRegistryReturnsOneProxyPerUser(t *testing.T) {
	capability, err := NewCapability()
	if err != nil {
		t.Fatalf("mint capability: %v", err)
	}
	registry := NewRegistry(testDomainID, NewMemoryExecutionStore(), sigcheck.NewRegistry(), capability)
	defer registry.Close()

	user := common.HexToAddress("0xa11c")
	first := registry.ProxyFor(user)
	if first == nil {
		t.Fatal("nil proxy")
	}
	if registry.ProxyFor(user) != first {
		t.Fatal("registry minted a second proxy for the same user")
	}
	if registry.ProxyFor(common.HexToAddress("0xb0b0")) == first {
		t.Fatal("distinct users share a proxy")
	}
}

func TestCapabilityGrants(t *testing.T) {
	first, err := NewCapability()
	if err != nil {
		t.Fatalf("mint capability: %v", err)
	}
	second, err := NewCapability()
	if err != nil {
		t.Fatalf("mint capability: %v", err)
	}

	if !first.Grants(first) {
		t.Fatal("capability does not grant itself")
	}
	if first.Grants(second) {
		t.Fatal("distinct capabilities grant each other")
	}
	if first.Grants(Capability{}) || (Capability{}).Grants(first) {
		t.Fatal("zero capability authenticated")
	}
	if (Capability{}).Grants(Capability{}) {
		t.Fatal("two zero capabilities authenticated")
	}
}
