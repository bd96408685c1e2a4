package workbench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/dataview-hq/dataview/internal/backend"
	"github.com/dataview-hq/dataview/internal/domain/lineage"
	"github.com/dataview-hq/dataview/internal/domain/state"
	"github.com/dataview-hq/dataview/internal/infrastructure/logging"
	"github.com/dataview-hq/dataview/internal/shared/id"
	"github.com/dataview-hq/dataview/internal/shared/types"
)

// ErrNoDataset is returned for an ask before any dataset is loaded.
var ErrNoDataset = errors.New("no dataset loaded in this session")

// Backend is the collaborator surface the workbench needs.
type Backend interface {
	Upload(ctx context.Context, sessionID, filename string, file io.Reader) (*backend.UploadResponse, error)
	Ask(ctx context.Context, req backend.AskRequest) (*backend.AskResponse, error)
	Checkout(ctx context.Context, sessionID, nodeID string) (*backend.CheckoutResponse, error)
}

// Lineage is the snapshot surface the workbench needs.
type Lineage interface {
	Refresh(ctx context.Context, sessionID string) error
	SelectNode(nodeID string) (lineage.NodeRef, error)
}

// Notifier pushes gateway events to connected clients. May be nil.
type Notifier interface {
	Publish(event string, payload interface{})
}

// Service drives the upload, ask and checkout flows.
type Service struct {
	backend Backend
	state   *state.Reconciler
	lineage Lineage
	events  Notifier
	policy  *bluemonday.Policy
	log     *logging.Logger
	wg      sync.WaitGroup
}

// NewService creates a workbench service. events and log may be nil.
func NewService(b Backend, st *state.Reconciler, ln Lineage, events Notifier, log *logging.Logger) *Service {
	return &Service{
		backend: b,
		state:   st,
		lineage: ln,
		events:  events,
		policy:  bluemonday.UGCPolicy(),
		log:     log,
	}
}

// Wait blocks until in-flight background notifications finish. Used on
// shutdown and in tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Upload validates and ingests a dataset into the active session. The
// new root node becomes current, its artifact becomes the session seed,
// and the transcript gets a confirmation message with a table preview.
func (s *Service) Upload(ctx context.Context, filename string, file io.Reader) (types.SessionState, error) {
	sessionID := s.state.SessionID()

	validated, err := ValidateDataset(filename, file)
	if err != nil {
		return s.state.Current(), err
	}

	resp, err := s.backend.Upload(ctx, sessionID, filename, validated)
	if err != nil {
		return s.fail(sessionID, fmt.Sprintf("Upload of %s failed: %s", filename, errorText(err))), err
	}

	msg := types.Message{
		ID:   id.NewMessageID().String(),
		Role: types.RoleAssistant,
		Text: fmt.Sprintf("Loaded %s: %d rows, %d columns.", filename, resp.Artifact.Rows, resp.Artifact.Cols),
		Block: &types.Block{
			Kind:       types.BlockTable,
			ArtifactID: resp.Artifact.ArtifactID,
			Columns:    resp.Columns,
			Preview:    resp.Preview,
		},
	}
	st, err := s.state.Apply(sessionID, types.StatePatch{
		Messages:      appendMessage(s.state.Current().Messages, msg),
		ArtifactID:    types.StrPtr(resp.Artifact.ArtifactID),
		CurrentNodeID: types.StrPtr(resp.Node.NodeID),
	})
	if err != nil {
		return st, err
	}

	s.publishTranscript(sessionID, st)
	s.refreshAsync(sessionID)
	return st, nil
}

// Ask forwards a question about the session's dataset and renders the
// outcome into the transcript according to the planner's intent.
func (s *Service) Ask(ctx context.Context, message string) (types.SessionState, error) {
	sessionID := s.state.SessionID()

	current := s.state.Current()
	if current.ArtifactID == "" {
		return current, ErrNoDataset
	}
	artifactID := current.ArtifactID

	st, err := s.state.Append(sessionID, types.Message{
		ID:   id.NewMessageID().String(),
		Role: types.RoleUser,
		Text: message,
	})
	if err != nil {
		return st, err
	}
	s.publishTranscript(sessionID, st)

	resp, err := s.backend.Ask(ctx, backend.AskRequest{
		SessionID:  sessionID,
		ArtifactID: artifactID,
		Message:    message,
	})
	if err != nil {
		return s.fail(sessionID, "That didn't work: "+errorText(err)), err
	}

	return s.renderAnswer(sessionID, resp)
}

// renderAnswer turns one ask response into transcript and state per the
// planner intent. Derived-data intents move the current node and kick a
// lineage refresh. A table result also becomes the current artifact;
// plot and report artifacts are not queryable, so they leave the
// dataset artifact in place for the next question.
func (s *Service) renderAnswer(sessionID string, resp *backend.AskResponse) (types.SessionState, error) {
	switch resp.Intent.Type {
	case backend.IntentAnswer:
		a, err := resp.AsAnswer()
		if err != nil {
			return s.fail(sessionID, "The backend sent an answer I couldn't read."), err
		}
		st, err := s.state.Append(sessionID, types.Message{
			ID:   id.NewMessageID().String(),
			Role: types.RoleAssistant,
			Text: a.Text,
		})
		if err != nil {
			return st, err
		}
		s.publishTranscript(sessionID, st)
		return st, nil

	case backend.IntentSQL:
		q, err := resp.AsQuery()
		if err != nil {
			return s.fail(sessionID, "The backend sent a result I couldn't read."), err
		}
		msg := types.Message{
			ID:   id.NewMessageID().String(),
			Role: types.RoleAssistant,
			Text: fmt.Sprintf("Here's the result (%d rows).", q.Artifact.Rows),
			Block: &types.Block{
				Kind:       types.BlockTable,
				ArtifactID: q.Artifact.ArtifactID,
				Columns:    q.Columns,
				Preview:    q.Preview,
			},
		}
		st, err := s.state.Apply(sessionID, types.StatePatch{
			Messages:      appendMessage(s.state.Current().Messages, msg),
			ArtifactID:    types.StrPtr(q.Artifact.ArtifactID),
			CurrentNodeID: types.StrPtr(q.Node.NodeID),
		})
		if err != nil {
			return st, err
		}
		s.publishTranscript(sessionID, st)
		s.refreshAsync(sessionID)
		return st, nil

	case backend.IntentPlot:
		p, err := resp.AsPlot()
		if err != nil {
			return s.fail(sessionID, "The backend sent a chart I couldn't read."), err
		}
		msg := types.Message{
			ID:   id.NewMessageID().String(),
			Role: types.RoleAssistant,
			Text: "Here's the chart.",
			Block: &types.Block{
				Kind:       types.BlockChart,
				ArtifactID: p.Artifact.ArtifactID,
			},
		}
		st, err := s.state.Apply(sessionID, types.StatePatch{
			Messages:      appendMessage(s.state.Current().Messages, msg),
			CurrentNodeID: types.StrPtr(p.Node.NodeID),
		})
		if err != nil {
			return st, err
		}
		s.publishTranscript(sessionID, st)
		s.refreshAsync(sessionID)
		return st, nil

	case backend.IntentReport:
		r, err := resp.AsReport()
		if err != nil {
			return s.fail(sessionID, "The backend sent a report I couldn't read."), err
		}
		msg := types.Message{
			ID:   id.NewMessageID().String(),
			Role: types.RoleAssistant,
			Text: "Here's the report.",
			Block: &types.Block{
				Kind:       types.BlockReport,
				ArtifactID: r.Artifact.ArtifactID,
				HTML:       s.policy.Sanitize(r.HTML),
			},
		}
		st, err := s.state.Apply(sessionID, types.StatePatch{
			Messages:      appendMessage(s.state.Current().Messages, msg),
			CurrentNodeID: types.StrPtr(r.Node.NodeID),
		})
		if err != nil {
			return st, err
		}
		s.publishTranscript(sessionID, st)
		s.refreshAsync(sessionID)
		return st, nil

	default:
		err := fmt.Errorf("unknown intent %q", resp.Intent.Type)
		return s.fail(sessionID, "I didn't understand what the backend planned to do."), err
	}
}

// Checkout moves the session to an existing lineage node. Local state
// updates immediately; the backend is notified in the background, and a
// notify failure lands in the transcript instead of blocking the user.
func (s *Service) Checkout(ctx context.Context, nodeID string) (types.SessionState, error) {
	sessionID := s.state.SessionID()

	ref, err := s.lineage.SelectNode(nodeID)
	if err != nil {
		return s.state.Current(), err
	}

	msg := types.Message{
		ID:   id.NewMessageID().String(),
		Role: types.RoleSystem,
		Text: "Jumped to an earlier step.",
	}
	patch := types.StatePatch{
		Messages:      appendMessage(s.state.Current().Messages, msg),
		CurrentNodeID: types.StrPtr(ref.NodeID),
	}
	if ref.ArtifactID != "" {
		patch.ArtifactID = types.StrPtr(ref.ArtifactID)
	}
	st, err := s.state.Apply(sessionID, patch)
	if err != nil {
		return st, err
	}
	s.publishTranscript(sessionID, st)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.backend.Checkout(context.Background(), sessionID, ref.NodeID); err != nil {
			s.fail(sessionID, "Couldn't record the jump on the server: "+errorText(err))
			return
		}
		s.refresh(sessionID)
	}()
	return st, nil
}

// fail appends a system error message to the session's transcript. A
// completion that lost its session to a switch is dropped silently, the
// same way the lineage store drops stale refreshes.
func (s *Service) fail(sessionID, text string) types.SessionState {
	st, err := s.state.Append(sessionID, types.Message{
		ID:   id.NewMessageID().String(),
		Role: types.RoleSystem,
		Text: text,
	})
	if err != nil {
		if errors.Is(err, state.ErrSessionDetached) {
			if s.log != nil {
				s.log.Debug("dropping error message for detached session",
					zap.String("session_id", sessionID))
			}
			return st
		}
		if s.log != nil {
			s.log.Error("failed to record error message", zap.Error(err))
		}
	}
	s.publishTranscript(sessionID, st)
	return st
}

func (s *Service) refreshAsync(sessionID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refresh(sessionID)
	}()
}

func (s *Service) refresh(sessionID string) {
	if err := s.lineage.Refresh(context.Background(), sessionID); err != nil {
		if s.log != nil {
			s.log.Warn("lineage refresh failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return
	}
	if s.events != nil {
		s.events.Publish("lineage", map[string]string{"session_id": sessionID})
	}
}

func (s *Service) publishTranscript(sessionID string, st types.SessionState) {
	if s.events != nil {
		s.events.Publish("transcript", map[string]interface{}{
			"session_id": sessionID,
			"state":      st,
		})
	}
}

func errorText(err error) string {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) && statusErr.Detail != "" {
		return statusErr.Detail
	}
	return err.Error()
}

func appendMessage(msgs []types.Message, msg types.Message) []types.Message {
	out := make([]types.Message, 0, len(msgs)+1)
	out = append(out, msgs...)
	out = append(out, msg)
	return out
}
