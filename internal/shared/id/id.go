// Package id provides centralized ID generation for the gateway.
//
// All client-minted identifiers are prefixed ULIDs:
//   - Lexicographic sortability: transcripts and sessions sort by time
//   - Prefixed types: sess_*, msg_*, ns_*, req_* keep logs readable
//   - Type safety: separate types prevent ID misuse
//
// Node and artifact identifiers are NOT minted here; the analysis
// backend is authoritative for those and the gateway treats them as
// opaque strings. Collisions between client-minted ULIDs inside one
// namespace are treated as negligible, not impossible.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies a conversation session.
type SessionID string

// MessageID identifies a transcript message.
type MessageID string

// NamespaceID identifies a resolved user cache namespace.
type NamespaceID string

// RequestID identifies an API request.
type RequestID string

const (
	SessionPrefix   = "sess"
	MessagePrefix   = "msg"
	NamespacePrefix = "ns"
	RequestPrefix   = "req"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy
// source, useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID mints a session identifier.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewMessageID mints a transcript message identifier.
func NewMessageID() MessageID {
	return MessageID(Default().GenerateWithPrefix(MessagePrefix))
}

// NewNamespaceID mints a cache namespace identifier.
func NewNamespaceID() NamespaceID {
	return NamespaceID(Default().GenerateWithPrefix(NamespacePrefix))
}

// NewRequestID mints an API request identifier.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id SessionID) String() string   { return string(id) }
func (id MessageID) String() string   { return string(id) }
func (id NamespaceID) String() string { return string(id) }
func (id RequestID) String() string   { return string(id) }

// IsValid checks if a bare string is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the embedded creation time from a bare ULID.
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
