// Package state models the destination-domain execution environment the
// settlement engine runs against: fungible token balances with
// transferFrom/approve semantics, native value, per-account storage, and a
// registry of opaque call targets. All mutation happens inside a serial
// transaction with nested savepoints, which gives the settler and the
// execution proxy their commit-or-rollback boundaries.
package state
