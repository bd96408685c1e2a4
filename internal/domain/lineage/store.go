package lineage

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/dataview-hq/dataview/internal/backend"
	"github.com/dataview-hq/dataview/internal/infrastructure/logging"
	"github.com/dataview-hq/dataview/internal/infrastructure/monitoring"
	"github.com/dataview-hq/dataview/internal/shared/types"
)

// ErrUnknownNode is returned when a node id is not in the current
// snapshot; the caller should refresh and try again.
var ErrUnknownNode = errors.New("node not in snapshot")

// Fetcher is the backend surface the store needs.
type Fetcher interface {
	History(ctx context.Context, sessionID string) (*backend.HistoryResponse, error)
	NodeDetail(ctx context.Context, nodeID string) (*types.NodeDetail, error)
}

// NodeRef is the selection mapping for one snapshot node.
type NodeRef struct {
	NodeID     string `json:"node_id"`
	ArtifactID string `json:"artifact_id,omitempty"`
}

// detailEntry is one cached detail lookup. missing marks a terminal
// "backend says this node does not exist" answer.
type detailEntry struct {
	detail  *types.NodeDetail
	missing bool
}

// Store holds the lineage snapshot for the active session.
type Store struct {
	mu      sync.Mutex
	fetcher Fetcher
	active  func() string
	metrics *monitoring.Metrics
	log     *logging.Logger

	sessionID string
	nodes     []types.LineageNode
	index     map[string]int
	details   map[string]detailEntry
}

// NewStore creates a lineage store. active reports the currently active
// session id and arbitrates stale refreshes; metrics and log may be nil.
func NewStore(fetcher Fetcher, active func() string, metrics *monitoring.Metrics, log *logging.Logger) *Store {
	return &Store{
		fetcher: fetcher,
		active:  active,
		metrics: metrics,
		log:     log,
		details: make(map[string]detailEntry),
	}
}

// Refresh fetches the full node list for a session and replaces the
// snapshot wholesale. If the active session has changed by the time the
// response arrives, the response is dropped without touching the
// snapshot; refreshing is idempotent otherwise.
func (s *Store) Refresh(ctx context.Context, sessionID string) error {
	captured := sessionID

	resp, err := s.fetcher.History(ctx, captured)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRefresh("error")
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active() != captured {
		if s.metrics != nil {
			s.metrics.RecordRefresh("stale")
		}
		if s.log != nil {
			s.log.Debug("discarding stale lineage refresh",
				zap.String("captured", captured),
				zap.String("active", s.active()))
		}
		return nil
	}

	if s.sessionID != captured {
		// New session: detail cache from the old one no longer applies.
		s.details = make(map[string]detailEntry)
	}
	s.sessionID = captured
	s.nodes = resp.Items
	s.index = make(map[string]int, len(resp.Items))
	for i, n := range resp.Items {
		s.index[n.NodeID] = i
	}

	if s.metrics != nil {
		s.metrics.RecordRefresh("applied")
	}
	return nil
}

// Snapshot returns the session the snapshot belongs to and its
// positioned layout. An empty store yields an explicit empty layout.
func (s *Store) Snapshot() (string, types.Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, BuildLayout(s.nodes)
}

// SelectNode maps a snapshot node to its selection reference.
func (s *Store) SelectNode(nodeID string) (NodeRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[nodeID]
	if !ok {
		return NodeRef{}, ErrUnknownNode
	}
	return NodeRef{
		NodeID:     nodeID,
		ArtifactID: s.nodes[i].PrimaryArtifactID,
	}, nil
}

// NodeDetail returns a node's operation parameters, fetching lazily on
// first access. A backend "not found" is cached as terminal: later
// lookups answer from the cache without another fetch. Transient fetch
// failures are not cached.
func (s *Store) NodeDetail(ctx context.Context, nodeID string) (*types.NodeDetail, error) {
	s.mu.Lock()
	if entry, ok := s.details[nodeID]; ok {
		s.mu.Unlock()
		if entry.missing {
			s.recordDetail("negative")
			return nil, backend.ErrNodeNotFound
		}
		s.recordDetail("hit")
		return entry.detail, nil
	}
	s.mu.Unlock()

	detail, err := s.fetcher.NodeDetail(ctx, nodeID)
	if err != nil {
		if errors.Is(err, backend.ErrNodeNotFound) {
			s.mu.Lock()
			s.details[nodeID] = detailEntry{missing: true}
			s.mu.Unlock()
		}
		s.recordDetail("miss")
		return nil, err
	}

	s.mu.Lock()
	s.details[nodeID] = detailEntry{detail: detail}
	s.mu.Unlock()
	s.recordDetail("miss")
	return detail, nil
}

func (s *Store) recordDetail(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordDetailLookup(outcome)
	}
}
