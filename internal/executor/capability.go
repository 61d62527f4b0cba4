package executor

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// Capability is the explicit caller credential required to invoke Execute.
// The settler receives it at wiring time; no ambient caller identity is
// trusted. A zero Capability never authenticates.
type Capability struct {
	token [32]byte
	valid bool
}

// NewCapability mints a fresh random capability token.
func NewCapability() (Capability, error) {
	var capability Capability
	if _, err := rand.Read(capability.token[:]); err != nil {
		return Capability{}, fmt.Errorf("mint capability: %w", err)
	}
	capability.valid = true
	return capability, nil
}

// Grants reports whether other carries the same token, in constant time.
func (c Capability) Grants(other Capability) bool {
	if !c.valid || !other.valid {
		return false
	}
	return subtle.ConstantTimeCompare(c.token[:], other.token[:]) == 1
}
