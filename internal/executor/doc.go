// Package executor implements the per-user execution proxy: the component
// that, holding a user's delegated authority on the destination domain,
// verifies origin-signed authorization material, forwards escrowed funds to
// the user, and runs the user's call batch as an all-or-nothing unit. Its
// replay guard is independent of the settler's bookkeeping, and its entry
// point is protected by an explicit capability token rather than ambient
// caller identity.
package executor
