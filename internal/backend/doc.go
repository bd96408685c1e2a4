// Package backend is the HTTP client for the analysis backend.
//
// The backend is the authority for lineage: every mutating call (upload,
// ask, checkout) creates or moves nodes server-side, and the gateway
// only mirrors the result. All calls go through a shared rate limiter
// and circuit breaker; none are retried automatically; a retry is
// always an explicit user action, so a failed call surfaces immediately
// as a user-visible message instead of hiding behind backoff.
package backend
