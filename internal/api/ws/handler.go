package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/activity"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/lifecycle"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/monitoring"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is a client to server frame.
type Message struct {
	Type   string `json:"type"`
	Kind   string `json:"kind,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
}

// Frame is a server to client frame.
type Frame struct {
	Type      string     `json:"type"`
	Session   string     `json:"session,omitempty"`
	Kind      string     `json:"kind,omitempty"`
	At        *time.Time `json:"at,omitempty"`
	IdleSince *time.Time `json:"idle_since,omitempty"`
	IdleMs    int64      `json:"idle_ms,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Sessions resolves the session a connection attaches to.
type Sessions interface {
	Get(id string) (*session.Session, error)
}

// Handler streams lifecycle broadcasts of a session and accepts page
// signals from the client.
type Handler struct {
	sessions Sessions
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a websocket handler
func NewHandler(sessions Sessions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// WithMetrics attaches a metrics collector
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// HandleEvents upgrades GET /sessions/:id/events.
func (h *Handler) HandleEvents(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	logger := h.logger.With(zap.String("session", s.ID.String()))
	out := make(chan Frame, sendBuffer)

	// listeners run on the emitting goroutine, so they never block on the socket
	push := func(f Frame) {
		select {
		case out <- f:
		default:
			logger.Warn("WebSocket send buffer full, dropping frame", zap.String("type", f.Type))
		}
	}

	for _, kind := range lifecycle.Kinds {
		sub, err := s.Subscribe(kind, func(e lifecycle.Event) { push(eventFrame(s.ID.String(), e)) })
		if err != nil {
			h.writeFrame(conn, Frame{Type: "error", Message: err.Error()})
			return
		}
		defer sub.Unsubscribe()
	}

	done := make(chan struct{})
	go h.readLoop(conn, s, push, done, logger)

	if err := h.writeFrame(conn, Frame{Type: "system", Session: s.ID.String(), Message: "connected"}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-out:
			if err := h.writeFrame(conn, f); err != nil {
				logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, s *session.Session, push func(Frame), done chan<- struct{}, logger *zap.Logger) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			push(Frame{Type: "error", Message: "invalid message"})
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case "activity":
			in, err := activity.ParseInput(msg.Kind)
			if err != nil {
				push(Frame{Type: "error", Message: err.Error()})
				continue
			}
			s.RecordActivity(in)
		case "visibility":
			s.SetHidden(msg.Hidden)
		case "focus":
			s.Focus()
		case "ping":
			push(Frame{Type: "pong"})
		default:
			push(Frame{Type: "error", Message: "unknown message type"})
		}
	}
}

func (h *Handler) writeFrame(conn *websocket.Conn, f Frame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	h.metrics.RecordWSMessage("out", f.Type)
	return nil
}

func eventFrame(id string, e lifecycle.Event) Frame {
	at := e.At
	f := Frame{
		Type:    "lifecycle",
		Session: id,
		Kind:    string(e.Kind),
		At:      &at,
		Reason:  e.Reason,
	}
	switch e.Kind {
	case lifecycle.IdleStart:
		since := e.IdleSince
		f.IdleSince = &since
	case lifecycle.IdleEnd:
		f.IdleMs = e.Idle.Milliseconds()
	}
	return f
}
