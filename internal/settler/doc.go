// Package settler implements the destination-domain escrow and replay-guard
// side of the settlement protocol. A filler submits an encoded intent together
// with the intent identifier; the settler pulls the filler's advance into
// escrow, marks the identifier as filled exactly once, grants the user's
// execution proxy spending authority over the escrowed amount, and invokes
// execution. Settlement marks are never rolled back once set, so a failed
// execution after a successful mark leaves the escrowed funds stranded; that
// condition raises a critical alert and is surfaced in the fill outcome.
package settler
