// Package workbench orchestrates the user-facing analysis flows.
//
// Each flow (upload, ask, checkout) drives the same loop: validate,
// call the analysis backend, append the outcome to the transcript,
// reconcile session state, and kick a lineage refresh. Failures become
// transcript messages rather than retries; the user decides what to do
// next.
package workbench
