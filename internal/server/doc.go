// Package server wires the gateway together and runs its HTTP server.
//
// Startup order matters: identity resolves first (nothing touches the
// cache before it), then the cache, backend client and domain managers
// come up, and finally routes are mounted. Shutdown drains in-flight
// background notifications before the process exits.
package server
