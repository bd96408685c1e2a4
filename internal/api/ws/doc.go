// Package ws pushes gateway events to connected UI clients.
//
// Events flow one way: the gateway publishes transcript, lineage and
// session notifications, and clients treat them as hints to re-read
// gateway state. The only client-to-server traffic is ping.
package ws
