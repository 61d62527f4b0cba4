package sigcheck

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestRecoverMatches(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey)
	digest := crypto.Keccak256Hash([]byte("settlement digest"))

	signature, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if !RecoverMatches(signer, digest, signature) {
		t.Fatal("valid signature rejected")
	}
	if RecoverMatches(common.HexToAddress("0x01"), digest, signature) {
		t.Fatal("signature accepted for the wrong identity")
	}

	// Wallets commonly emit V as 27/28 instead of 0/1.
	legacy := bytes.Clone(signature)
	legacy[crypto.RecoveryIDOffset] += 27
	if !RecoverMatches(signer, digest, legacy) {
		t.Fatal("legacy V encoding rejected")
	}

	other := crypto.Keccak256Hash([]byte("another digest"))
	if RecoverMatches(signer, other, signature) {
		t.Fatal("signature accepted for the wrong digest")
	}
	if RecoverMatches(signer, digest, signature[:64]) {
		t.Fatal("truncated signature accepted")
	}
	if RecoverMatches(signer, digest, nil) {
		t.Fatal("empty signature accepted")
	}
}

func TestRegistryPrefersContractVerifier(t *testing.T) {
	registry := NewRegistry()
	identity := common.HexToAddress("0xc0de")
	digest := crypto.Keccak256Hash([]byte("digest"))

	// Without registered code, verification falls back to key recovery and
	// fails for garbage input.
	if registry.IsValidSignature(identity, digest, []byte("garbage")) {
		t.Fatal("garbage signature accepted")
	}

	registry.RegisterContract(identity, func(d common.Hash, signature []byte) bool {
		return d == digest && string(signature) == "magic"
	})
	if !registry.IsValidSignature(identity, digest, []byte("magic")) {
		t.Fatal("contract verifier not consulted")
	}
	if registry.IsValidSignature(identity, digest, []byte("wrong")) {
		t.Fatal("contract verifier bypassed")
	}

	// Other identities are unaffected by the registration.
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey)
	signature, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !registry.IsValidSignature(signer, digest, signature) {
		t.Fatal("recovery fallback broken for unregistered identity")
	}

	// Unregistering restores the fallback path.
	registry.RegisterContract(identity, nil)
	if registry.IsValidSignature(identity, digest, []byte("magic")) {
		t.Fatal("stale contract verifier still active")
	}
}
