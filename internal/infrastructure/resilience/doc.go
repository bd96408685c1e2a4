// Package resilience implements the circuit breaker guarding calls to
// the analysis backend.
//
// The gateway performs no automatic retries (a repeat is always a user
// action), so the breaker is what keeps a flapping backend from eating
// every click: after enough consecutive failures it trips open and
// calls fail fast with ErrCircuitOpen instead of hanging. After the
// open timeout a limited number of probes run in half-open state; a
// probe failure reopens the breaker, enough successes close it.
//
// Execute returns the wrapped call's result even when the call counts
// as a failure, so HTTP status errors can both trip the breaker and
// carry their response to the caller.
package resilience
