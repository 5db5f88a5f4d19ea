package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/activity"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/producer"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/tools"
)

const maxScriptSize = 64 << 10

// Upstream reports the health of the data-fetching upstream.
type Upstream interface {
	BreakerState() resilience.State
}

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions *session.Manager
	runner   *tools.Runner
	upstream Upstream
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers creates a new handler set. upstream may be nil when no
// fetcher is configured.
func NewHandlers(sessions *session.Manager, runner *tools.Runner, upstream Upstream, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		runner:   runner,
		upstream: upstream,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics/json", h.MetricsJSON)

	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.DELETE("/sessions/:id", h.CloseSession)
	r.POST("/sessions/:id/activity", h.RecordActivity)
	r.POST("/sessions/:id/visibility", h.SetVisibility)
	r.POST("/sessions/:id/focus", h.Focus)
	r.POST("/sessions/:id/watch", h.Watch)
	r.GET("/sessions/:id/errors", h.Errors)
	r.POST("/sessions/:id/renderer/:action", h.RendererAction)

	r.POST("/classify", h.Classify)
	r.POST("/tools/run", h.RunTool)
}

// Root handles the root endpoint
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "coordinator",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	upstream := gin.H{"configured": h.upstream != nil}
	if h.upstream != nil {
		upstream["breaker"] = h.upstream.BreakerState().String()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"sessions":       h.sessions.Count(),
		"upstream":       upstream,
		"uptime_seconds": h.metrics.Uptime().Seconds(),
	})
}

// MetricsJSON returns the counters of the daemon as JSON
func (h *Handlers) MetricsJSON(c *gin.Context) {
	snap := h.metrics.GetSnapshot()
	errorRate := 0.0
	if snap.TotalRequests > 0 {
		errorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp":       time.Now(),
		"counters":        snap,
		"error_rate":      errorRate,
		"sessions_active": h.sessions.Count(),
		"uptime_seconds":  h.metrics.Uptime().Seconds(),
	})
}

// CreateSession creates and starts a session
func (h *Handlers) CreateSession(c *gin.Context) {
	s, err := h.sessions.Create()
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, s.View())
}

// ListSessions lists every live session
func (h *Handlers) ListSessions(c *gin.Context) {
	list := h.sessions.List()
	views := make([]session.View, 0, len(list))
	for _, s := range list {
		views = append(views, s.View())
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": views,
		"count":    len(views),
	})
}

// GetSession returns a session view
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.View())
}

// CloseSession stops a session and releases everything it started
func (h *Handlers) CloseSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Close(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

type activityRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// RecordActivity reports a user input
func (h *Handlers) RecordActivity(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := activity.ParseInput(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.RecordActivity(in)
	c.JSON(http.StatusOK, s.View())
}

type visibilityRequest struct {
	Hidden *bool `json:"hidden" binding:"required"`
}

// SetVisibility reports a page visibility change
func (h *Handlers) SetVisibility(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.SetHidden(*req.Hidden)
	c.JSON(http.StatusOK, s.View())
}

// Focus runs a throttled focus revalidation
func (h *Handlers) Focus(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"revalidated": s.Focus()})
}

type watchRequest struct {
	Key string `json:"key" binding:"required"`
}

// Watch adds a key the session keeps revalidated
func (h *Handlers) Watch(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.Watch(req.Key) {
		c.JSON(http.StatusConflict, gin.H{"error": "no upstream configured"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"key": req.Key})
}

// Errors returns the reports surfaced to the session's error boundary
func (h *Handlers) Errors(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	reports := s.Errors()
	c.JSON(http.StatusOK, gin.H{
		"errors": reports,
		"count":  len(reports),
	})
}

// RendererAction drives the session's renderer: pause, resume,
// context-lost or context-restored.
func (h *Handlers) RendererAction(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	r := s.Renderer()
	if r == nil {
		c.JSON(http.StatusConflict, gin.H{"error": session.ErrNoSurface.Error()})
		return
	}

	var err error
	switch c.Param("action") {
	case "pause":
		r.Pause()
	case "resume":
		r.Resume()
	case "context-lost":
		err = s.LoseContext()
	case "context-restored":
		err = s.RestoreContext()
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown renderer action"})
		return
	}
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r.Stats())
}

type classifyRequest struct {
	Message string `json:"message" binding:"required"`
}

// Classify maps an error message onto its source and recovery
func (h *Handlers) Classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	class := faults.Classify(req.Message)
	c.JSON(http.StatusOK, gin.H{
		"classification": class,
		"recovery":       faults.RecoveryFor(class),
	})
}

type runToolRequest struct {
	Name      string `json:"name"`
	Script    string `json:"script" binding:"required"`
	TimeoutMs int64  `json:"timeout_ms"`
}

// RunTool executes a tool script bounded by its timeout
func (h *Handlers) RunTool(c *gin.Context) {
	var req runToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Script) > maxScriptSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "script too large"})
		return
	}
	if req.TimeoutMs < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timeout_ms must not be negative"})
		return
	}
	if req.Name == "" {
		req.Name = "anonymous"
	}

	ctx := c.Request.Context()
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	res, err := h.runner.Run(ctx, req.Name, req.Script, timeout)

	switch {
	case errors.Is(err, tools.ErrEmptyScript):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case producer.IsTimeoutError(err):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":     err.Error(),
			"timed_out": true,
			"progress":  res.Progress,
		})
	case err != nil:
		h.logger.Warn("Tool run failed", append(tracing.Fields(ctx), zap.String("tool", req.Name), zap.Error(err))...)
		class := faults.Classify(err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          err.Error(),
			"timed_out":      false,
			"classification": class,
			"progress":       res.Progress,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"progress":    res.Progress,
			"result":      res.Value,
			"console":     res.Console,
			"duration_ms": res.Duration.Milliseconds(),
		})
	}
}

func (h *Handlers) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return s, true
}
