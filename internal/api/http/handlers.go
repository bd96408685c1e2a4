package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dataview-hq/dataview/internal/backend"
	"github.com/dataview-hq/dataview/internal/domain/identity"
	"github.com/dataview-hq/dataview/internal/domain/lineage"
	"github.com/dataview-hq/dataview/internal/domain/registry"
	"github.com/dataview-hq/dataview/internal/domain/state"
	"github.com/dataview-hq/dataview/internal/domain/workbench"
	"github.com/dataview-hq/dataview/internal/infrastructure/logging"
	"github.com/dataview-hq/dataview/internal/infrastructure/resilience"
)

// Artifacts streams raw artifact bytes from the analysis backend.
type Artifacts interface {
	FetchArtifact(ctx context.Context, artifactID string) (io.ReadCloser, string, error)
}

// Handler binds the REST surface to the domain layer.
type Handler struct {
	registry  *registry.Manager
	lineage   *lineage.Store
	workbench *workbench.Service
	state     *state.Reconciler
	artifacts Artifacts
	log       *logging.Logger
}

// NewHandler creates the REST handler. log may be nil.
func NewHandler(reg *registry.Manager, ln *lineage.Store, wb *workbench.Service, st *state.Reconciler, artifacts Artifacts, log *logging.Logger) *Handler {
	return &Handler{
		registry:  reg,
		lineage:   ln,
		workbench: wb,
		state:     st,
		artifacts: artifacts,
		log:       log,
	}
}

// Register mounts all routes under /api.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.GET("/sessions", h.listSessions)
	api.POST("/sessions", h.createSession)
	api.POST("/sessions/:id/select", h.selectSession)
	api.PATCH("/sessions/:id", h.renameSession)

	api.GET("/state", h.currentState)

	api.GET("/lineage", h.getLineage)
	api.POST("/lineage/refresh", h.refreshLineage)
	api.GET("/nodes/:id", h.nodeDetail)
	api.POST("/nodes/:id/checkout", h.checkout)

	api.POST("/ask", h.ask)
	api.POST("/upload", h.upload)
	api.GET("/artifacts/:id", h.artifact)
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, active, err := h.registry.List()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions":  sessions,
		"active_id": active,
	})
}

func (h *Handler) createSession(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.registry.Create(req.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (h *Handler) selectSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.Select(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_id": id})
}

func (h *Handler) renameSession(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.Rename(c.Param("id"), req.Title); err != nil {
		h.respondError(c, err)
		return
	}
	session, _ := h.registry.Get(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *Handler) currentState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session_id": h.state.SessionID(),
		"state":      h.state.Current(),
	})
}

func (h *Handler) getLineage(c *gin.Context) {
	sessionID, layout := h.lineage.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"layout":     layout,
	})
}

func (h *Handler) refreshLineage(c *gin.Context) {
	sessionID := h.registry.Active()
	if sessionID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no active session"})
		return
	}
	if err := h.lineage.Refresh(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}
	snapSession, layout := h.lineage.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"session_id": snapSession,
		"layout":     layout,
	})
}

func (h *Handler) nodeDetail(c *gin.Context) {
	detail, err := h.lineage.NodeDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"node": detail})
}

func (h *Handler) checkout(c *gin.Context) {
	st, err := h.workbench.Checkout(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": h.state.SessionID(),
		"state":      st,
	})
}

func (h *Handler) ask(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.workbench.Ask(c.Request.Context(), req.Message)
	if err != nil {
		// The transcript already carries the failure for collaborator
		// errors; surface the state along with the status.
		h.respondErrorWithState(c, err, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": h.state.SessionID(),
		"state":      st,
	})
}

func (h *Handler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	st, err := h.workbench.Upload(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		h.respondErrorWithState(c, err, st)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": h.state.SessionID(),
		"state":      st,
	})
}

func (h *Handler) artifact(c *gin.Context) {
	body, contentType, err := h.artifacts.FetchArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError && h.log != nil {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) respondErrorWithState(c *gin.Context, err error, st interface{}) {
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
		"state": st,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownSession),
		errors.Is(err, lineage.ErrUnknownNode),
		errors.Is(err, backend.ErrNodeNotFound),
		errors.Is(err, backend.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, workbench.ErrNoDataset),
		errors.Is(err, workbench.ErrUnsupportedFile),
		errors.Is(err, workbench.ErrBadEncoding):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrSessionDetached):
		return http.StatusConflict
	case errors.Is(err, identity.ErrNotReady),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	}

	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
