// Package cache implements the gateway's namespaced state cache.
//
// Each resolved user identity maps to one namespace directory; each key
// maps to one JSON file under it, gzip-compressed past a size
// threshold. No two namespaces ever share a key, and no key is read or
// written before identity resolution completes (enforced by the
// identity package, not here).
//
// The cache is deliberately fail-open: a malformed file behaves like a
// missing one. Losing cached UI state is non-catastrophic (lineage is
// always recoverable from the analysis backend) but the transcript is
// NOT: this cache is its only home.
package cache
