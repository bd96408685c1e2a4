package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dataview-hq/dataview/internal/domain/state"
	"github.com/dataview-hq/dataview/internal/infrastructure/logging"
	"github.com/dataview-hq/dataview/internal/infrastructure/monitoring"
	"github.com/dataview-hq/dataview/internal/shared/id"
	"github.com/dataview-hq/dataview/internal/shared/types"
)

// Key is the cache key for the persisted session registry.
const Key = "sessions"

// ErrUnknownSession is returned for operations on a session id that is
// not in the registry.
var ErrUnknownSession = errors.New("unknown session")

// Cache is the subset of the state cache the registry needs.
type Cache interface {
	Get(namespace, key string, v interface{}) bool
	Put(namespace, key string, v interface{}) error
}

// Namespacer yields the resolved cache namespace.
type Namespacer interface {
	Namespace() (string, error)
}

// Switcher swaps the working session state. Implemented by the state
// reconciler; the outgoing state is flushed and the incoming one loaded
// with autosave suspended for the duration.
type Switcher interface {
	Switch(fromID, toID string) error
}

// record is the persisted registry shape.
type record struct {
	Sessions []types.Session `json:"sessions"`
	ActiveID string          `json:"active_id"`
}

// Manager owns the session list and the active-session pointer.
type Manager struct {
	mu       sync.Mutex
	cache    Cache
	ns       Namespacer
	switcher Switcher
	seed     Seed
	metrics  *monitoring.Metrics
	log      *logging.Logger
	onSelect func(sessionID string)

	sessions []types.Session
	activeID string
	loaded   bool
}

// NewManager creates a registry manager. metrics and log may be nil.
func NewManager(cache Cache, ns Namespacer, switcher Switcher, seed Seed, metrics *monitoring.Metrics, log *logging.Logger) *Manager {
	return &Manager{
		cache:    cache,
		ns:       ns,
		switcher: switcher,
		seed:     seed,
		metrics:  metrics,
		log:      log,
	}
}

// OnSelect registers a hook invoked after a session becomes active,
// for both Create and Select. Used to kick off a lineage refresh.
func (m *Manager) OnSelect(fn func(sessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSelect = fn
}

// List returns all sessions, newest first. An empty registry gets one
// default session synthesized and persisted; a second call returns the
// same one, not another.
func (m *Manager) List() ([]types.Session, string, error) {
	m.mu.Lock()

	if err := m.loadLocked(); err != nil {
		m.mu.Unlock()
		return nil, "", err
	}

	if len(m.sessions) == 0 {
		if err := m.synthesizeDefaultLocked(); err != nil {
			m.mu.Unlock()
			return nil, "", err
		}
		active := m.activeID
		sessions := m.snapshotLocked()
		hook := m.onSelect
		m.mu.Unlock()

		if hook != nil {
			hook(active)
		}
		return sessions, active, nil
	}

	sessions := m.snapshotLocked()
	active := m.activeID
	m.mu.Unlock()
	return sessions, active, nil
}

// Create adds a fresh session at the head of the list, makes it active
// and seeds its state with the greeting transcript.
func (m *Manager) Create(title string) (types.Session, error) {
	m.mu.Lock()

	if err := m.loadLocked(); err != nil {
		m.mu.Unlock()
		return types.Session{}, err
	}

	if title == "" {
		title = m.seed.Title
	}
	session := types.Session{
		ID:        id.NewSessionID().String(),
		Title:     title,
		CreatedAt: time.Now(),
	}

	if err := m.activateLocked(session, true); err != nil {
		m.mu.Unlock()
		return types.Session{}, err
	}

	if m.metrics != nil {
		m.metrics.IncSessionsCreated()
		m.metrics.SetSessions(len(m.sessions))
	}
	hook := m.onSelect
	m.mu.Unlock()

	if hook != nil {
		hook(session.ID)
	}
	return session, nil
}

// Select makes an existing session active. Selecting the session that
// is already active is a no-op.
func (m *Manager) Select(sessionID string) error {
	m.mu.Lock()

	if err := m.loadLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := m.findLocked(sessionID); !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	if sessionID == m.activeID {
		m.mu.Unlock()
		return nil
	}

	if err := m.switcher.Switch(m.activeID, sessionID); err != nil {
		m.mu.Unlock()
		return err
	}
	m.activeID = sessionID
	if err := m.persistLocked(); err != nil {
		m.mu.Unlock()
		return err
	}

	if m.metrics != nil {
		m.metrics.IncSessionSwitches()
	}
	hook := m.onSelect
	m.mu.Unlock()

	if hook != nil {
		hook(sessionID)
	}
	return nil
}

// Rename changes a session's title.
func (m *Manager) Rename(sessionID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return err
	}
	i, ok := m.findLocked(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	m.sessions[i].Title = title
	return m.persistLocked()
}

// Active returns the active session id ("" before first List/Create).
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Get returns one session by id.
func (m *Manager) Get(sessionID string) (types.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return types.Session{}, false
	}
	i, ok := m.findLocked(sessionID)
	if !ok {
		return types.Session{}, false
	}
	return m.sessions[i], true
}

// loadLocked reads the persisted registry once. Corrupt or missing
// entries read as empty; the registry is rebuilt on the next write.
func (m *Manager) loadLocked() error {
	if m.loaded {
		return nil
	}
	namespace, err := m.ns.Namespace()
	if err != nil {
		return err
	}

	var rec record
	if m.cache.Get(namespace, Key, &rec) {
		m.sessions = rec.Sessions
		m.activeID = rec.ActiveID
		if _, ok := m.findLocked(m.activeID); !ok && len(m.sessions) > 0 {
			m.activeID = m.sessions[0].ID
		}
	}
	m.loaded = true

	if m.metrics != nil {
		m.metrics.SetSessions(len(m.sessions))
	}
	return nil
}

// synthesizeDefaultLocked creates the one default session an empty
// registry gets.
func (m *Manager) synthesizeDefaultLocked() error {
	session := types.Session{
		ID:        id.NewSessionID().String(),
		Title:     m.seed.Title,
		CreatedAt: time.Now(),
	}
	if err := m.activateLocked(session, true); err != nil {
		return err
	}
	if m.log != nil {
		m.log.Info("synthesized default session", zap.String("session_id", session.ID))
	}
	if m.metrics != nil {
		m.metrics.IncSessionsCreated()
		m.metrics.SetSessions(len(m.sessions))
	}
	return nil
}

// activateLocked seeds the new session's state, prepends it and makes
// it active via the switcher.
func (m *Manager) activateLocked(session types.Session, greet bool) error {
	namespace, err := m.ns.Namespace()
	if err != nil {
		return err
	}

	seeded := types.SessionState{UpdatedAt: time.Now()}
	if greet && m.seed.Greeting != "" {
		seeded.Messages = []types.Message{{
			ID:   id.NewMessageID().String(),
			Role: types.RoleAssistant,
			Text: m.seed.Greeting,
		}}
	}
	if err := m.cache.Put(namespace, state.Key(session.ID), seeded); err != nil {
		return fmt.Errorf("seed session state: %w", err)
	}

	if err := m.switcher.Switch(m.activeID, session.ID); err != nil {
		return err
	}

	m.sessions = append([]types.Session{session}, m.sessions...)
	m.activeID = session.ID
	return m.persistLocked()
}

func (m *Manager) persistLocked() error {
	namespace, err := m.ns.Namespace()
	if err != nil {
		return err
	}
	rec := record{Sessions: m.sessions, ActiveID: m.activeID}
	if err := m.cache.Put(namespace, Key, rec); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}

func (m *Manager) findLocked(sessionID string) (int, bool) {
	for i := range m.sessions {
		if m.sessions[i].ID == sessionID {
			return i, true
		}
	}
	return 0, false
}

func (m *Manager) snapshotLocked() []types.Session {
	out := make([]types.Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}
