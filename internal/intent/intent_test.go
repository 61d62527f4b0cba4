package intent

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	xerrors "IntentLane/internal/errors"
)

func sampleIntent() Intent {
	return Intent{
		User: common.HexToAddress("0xaa01"),
		Asset: Asset{
			Token:  common.HexToAddress("0xbb02"),
			Amount: big.NewInt(2500),
		},
		DomainID:              7,
		DelegationFingerprint: common.HexToHash("0xcc03"),
		Calls: []Call{
			{Target: common.HexToAddress("0xdd04"), Payload: []byte{0x01, 0x02}, Value: big.NewInt(10)},
			{Target: common.HexToAddress("0xee05"), Payload: nil, Value: nil},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := Envelope{
		Intent: sampleIntent(),
		Authorization: AuthorizationMaterial{
			DomainID:  7,
			Delegate:  common.HexToAddress("0xff06"),
			Signature: make([]byte, 65),
		},
	}

	encoded, err := Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Intent.User != env.Intent.User {
		t.Fatalf("user mismatch: got %s want %s", decoded.Intent.User.Hex(), env.Intent.User.Hex())
	}
	if decoded.Intent.Asset.Amount.Cmp(env.Intent.Asset.Amount) != 0 {
		t.Fatalf("amount mismatch: got %s want %s", decoded.Intent.Asset.Amount, env.Intent.Asset.Amount)
	}
	if decoded.Intent.DomainID != env.Intent.DomainID {
		t.Fatalf("domain mismatch: got %d want %d", decoded.Intent.DomainID, env.Intent.DomainID)
	}
	if len(decoded.Intent.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(decoded.Intent.Calls))
	}
	if decoded.Intent.Calls[0].Target != env.Intent.Calls[0].Target {
		t.Fatalf("call target mismatch")
	}
	if decoded.Authorization.Empty() {
		t.Fatal("authorization material lost in transit")
	}
	if decoded.Authorization.Delegate != env.Authorization.Delegate {
		t.Fatalf("delegate mismatch")
	}

	// Both sides of the settlement flow must derive the same identifier from
	// the decoded envelope.
	if decoded.Intent.DeriveID() != env.Intent.DeriveID() {
		t.Fatal("intent id changed across encode/decode")
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	cases := map[string][]byte{
		"empty":        nil,
		"not json":     []byte("not-json"),
		"missing user": []byte(`{"intent":{"token":"0x00000000000000000000000000000000000000bb","amount":"0x1"}}`),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode(encoded); xerrors.CodeOf(err) != CodeMalformed {
				t.Fatalf("expected %s, got %v", CodeMalformed, err)
			}
		})
	}
}

func TestValidateRejectsBadCalls(t *testing.T) {
	in := sampleIntent()
	in.Calls = append(in.Calls, Call{Target: common.Address{}})
	if err := in.Validate(); xerrors.CodeOf(err) != CodeMalformed {
		t.Fatalf("expected malformed error for empty call target, got %v", err)
	}

	in = sampleIntent()
	in.Asset.Amount = big.NewInt(-1)
	if err := in.Validate(); xerrors.CodeOf(err) != CodeMalformed {
		t.Fatalf("expected malformed error for negative amount, got %v", err)
	}
}

func TestDeriveIDIsSensitiveToContents(t *testing.T) {
	base := sampleIntent()
	baseID := base.DeriveID()

	if got := base.DeriveID(); got != baseID {
		t.Fatal("derivation is not deterministic")
	}

	reordered := sampleIntent()
	reordered.Calls[0], reordered.Calls[1] = reordered.Calls[1], reordered.Calls[0]
	if reordered.DeriveID() == baseID {
		t.Fatal("reordering the call batch must change the intent id")
	}

	tweaked := sampleIntent()
	tweaked.Calls[0].Payload = []byte{0x01, 0x03}
	if tweaked.DeriveID() == baseID {
		t.Fatal("changing a payload must change the intent id")
	}

	otherDomain := sampleIntent()
	otherDomain.DomainID = 8
	if otherDomain.DeriveID() == baseID {
		t.Fatal("changing the domain must change the intent id")
	}
}

func TestDelegationDigestBindsAllParties(t *testing.T) {
	user := common.HexToAddress("0xaa01")
	delegate := common.HexToAddress("0xff06")

	digest := DelegationDigest(user, 7, delegate)
	if digest == (common.Hash{}) {
		t.Fatal("empty digest")
	}
	if DelegationDigest(user, 8, delegate) == digest {
		t.Fatal("digest must bind the domain id")
	}
	if DelegationDigest(user, 7, common.HexToAddress("0xff07")) == digest {
		t.Fatal("digest must bind the delegate")
	}
	if DelegationDigest(common.HexToAddress("0xaa02"), 7, delegate) == digest {
		t.Fatal("digest must bind the user")
	}
}
