// Package config loads the daemon's JSON configuration and the YAML domain
// definition file. The JSON side covers process wiring (server, storage,
// queue, settlement policy, event sinks, auth, logging); the YAML side
// describes the destination domain itself: known tokens and the genesis state
// seeded into the execution environment at startup.
package config
