// Package http exposes the gateway's UI-facing REST surface.
//
// Handlers are thin: they bind input, call the domain layer and map
// domain errors onto status codes. All state lives behind the registry,
// lineage store and workbench service.
package http
