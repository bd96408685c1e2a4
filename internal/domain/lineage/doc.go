// Package lineage mirrors the backend's operation DAG for one session.
//
// The store holds a wholesale snapshot of the active session's nodes,
// replaced on every refresh. Refreshes that resolve after the user has
// switched sessions are discarded, so a slow response can never paint
// another session's graph. Node details are fetched lazily and cached
// per session, including terminal "not found" entries that are never
// re-fetched.
//
// Layout is a pure function of a snapshot: depth is the longest parent
// chain from any root, layers keep first-appearance order, and nodes
// are spaced evenly within their layer.
package lineage
