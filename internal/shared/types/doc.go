// Package types provides the shared data model for the gateway.
//
// The model mirrors the split of authority in the product: the analysis
// backend owns lineage (nodes, edges, artifacts) while the gateway owns
// the conversational view of it (sessions, transcripts, checked-out
// context).
//
// Core Types:
//   - Session: one logical conversation thread
//   - SessionState: cached per-session UI state (transcript, context)
//   - Message: one transcript entry, optionally carrying a result block
//   - LineageNode: one recorded operation in the backend's DAG
//   - NodeDetail: lazily fetched operation parameters for one node
//
// Lineage types carry the backend's wire field names. Cached state types
// are private to the gateway's own persistence and never leave it.
package types
