package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dataview-hq/dataview/internal/infrastructure/logging"
	"github.com/dataview-hq/dataview/internal/shared/types"
)

// Key returns the cache key for a session's persisted state.
func Key(sessionID string) string { return "state/" + sessionID }

// ErrSessionDetached is returned when a write names a session that is no
// longer the attached one. A backend call that outlives a session switch
// must not land in the new session's transcript; callers drop the late
// completion the way the lineage store drops stale refreshes.
var ErrSessionDetached = errors.New("session no longer attached")

// Cache is the subset of the state cache the reconciler needs.
type Cache interface {
	Get(namespace, key string, v interface{}) bool
	Put(namespace, key string, v interface{}) error
}

// Namespacer yields the resolved cache namespace, or an error before
// identity resolution completes.
type Namespacer interface {
	Namespace() (string, error)
}

// Reconciler owns the working state of the active session.
type Reconciler struct {
	mu    sync.Mutex
	cache Cache
	ns    Namespacer
	log   *logging.Logger
	now   func() time.Time

	sessionID string
	current   types.SessionState
}

// New creates a reconciler. No session is attached yet.
func New(cache Cache, ns Namespacer, log *logging.Logger) *Reconciler {
	return &Reconciler{
		cache: cache,
		ns:    ns,
		log:   log,
		now:   time.Now,
	}
}

// Attach installs a session as the working session, loading its
// persisted state. A missing or corrupt entry loads as empty state.
func (r *Reconciler) Attach(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	namespace, err := r.ns.Namespace()
	if err != nil {
		return err
	}

	var st types.SessionState
	r.cache.Get(namespace, Key(sessionID), &st)
	r.sessionID = sessionID
	r.current = st
	return nil
}

// SessionID returns the attached session id.
func (r *Reconciler) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Current returns a snapshot of the working state.
func (r *Reconciler) Current() types.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Apply merges a partial update into the working state and persists the
// result. sessionID names the session the caller's action started
// against; if another session has been attached since, the write is
// refused with ErrSessionDetached. Fields the patch leaves nil fall
// back to the last persisted value, so a partial update never erases
// state it did not touch.
func (r *Reconciler) Apply(sessionID string, patch types.StatePatch) (types.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != r.sessionID {
		return types.SessionState{}, ErrSessionDetached
	}
	return r.applyLocked(patch)
}

// Append adds a message to the transcript and persists, per Apply.
func (r *Reconciler) Append(sessionID string, msg types.Message) (types.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != r.sessionID {
		return types.SessionState{}, ErrSessionDetached
	}

	msgs := make([]types.Message, 0, len(r.current.Messages)+1)
	msgs = append(msgs, r.current.Messages...)
	msgs = append(msgs, msg)
	return r.applyLocked(types.StatePatch{Messages: msgs})
}

// Switch atomically replaces the working session: the outgoing state is
// flushed under its own key, then the incoming state is loaded (empty
// when absent or corrupt). The mutex serializes Switch against Apply
// and Append, so nothing can autosave mid-switch; a write that raced
// the switch fails its session check once the switch completes.
func (r *Reconciler) Switch(fromID, toID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	namespace, err := r.ns.Namespace()
	if err != nil {
		return err
	}

	if fromID != "" && fromID == r.sessionID {
		if err := r.cache.Put(namespace, Key(fromID), r.current); err != nil {
			return fmt.Errorf("flush outgoing session %s: %w", fromID, err)
		}
	}

	var st types.SessionState
	r.cache.Get(namespace, Key(toID), &st)
	r.sessionID = toID
	r.current = st
	return nil
}

func (r *Reconciler) applyLocked(patch types.StatePatch) (types.SessionState, error) {
	namespace, err := r.ns.Namespace()
	if err != nil {
		return types.SessionState{}, err
	}

	// Merge over what is on disk, not just what is in memory, so nil
	// patch fields resolve to the persisted value.
	base := r.current
	var stored types.SessionState
	if r.cache.Get(namespace, Key(r.sessionID), &stored) {
		base = stored
	}

	merged := patch.Merge(base, r.now())
	r.current = merged

	if err := r.cache.Put(namespace, Key(r.sessionID), merged); err != nil {
		if r.log != nil {
			r.log.Error("state persist failed",
				zap.String("session_id", r.sessionID), zap.Error(err))
		}
		return types.SessionState{}, err
	}
	return r.snapshotLocked(), nil
}

func (r *Reconciler) snapshotLocked() types.SessionState {
	out := r.current
	out.Messages = make([]types.Message, len(r.current.Messages))
	copy(out.Messages, r.current.Messages)
	return out
}
