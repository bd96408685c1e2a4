// Package state reconciles in-memory session state with the cache.
//
// The working state of the active session lives here. Every change is
// merged over the last persisted snapshot and written back
// synchronously, so untouched fields are never clobbered by a partial
// update. The one exception is a session switch: persistence is
// suspended while the outgoing state is flushed and the incoming state
// is installed, so a half-switched state can never hit the cache.
package state
