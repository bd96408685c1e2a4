// Package registry manages the user's session list.
//
// The registry is the source of truth for which sessions exist and
// which one is active. It persists through the namespaced cache and is
// fail-open: a corrupted registry entry reads as an empty list, and the
// next List call synthesizes a fresh default session. Session switching
// itself (flushing and loading working state) is delegated to a
// Switcher so the atomic-switch rule lives in one place.
package registry
