package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/session"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
)

type harness struct {
	clk      *clock.Manual
	sessions *session.Manager
	server   *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	opts := session.DefaultOptions()
	opts.RendererEnabled = false
	sessions := session.NewManager(opts, session.Deps{Clock: clk})

	router := gin.New()
	router.GET("/sessions/:id/events", NewHandler(sessions, nil).HandleEvents)
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		sessions.CloseAll()
	})
	return &harness{clk: clk, sessions: sessions, server: server}
}

func (h *harness) dial(t *testing.T, id string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/sessions/" + id + "/events"
	return websocket.DefaultDialer.Dial(url, nil)
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f Frame
	require.NoError(t, sonic.Unmarshal(data, &f))
	return f
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := sonic.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestStreamsLifecycleEvents(t *testing.T) {
	h := newHarness(t)
	s, err := h.sessions.Create()
	require.NoError(t, err)

	conn, _, err := h.dial(t, s.ID.String())
	require.NoError(t, err)
	defer conn.Close()

	hello := readFrame(t, conn)
	assert.Equal(t, "system", hello.Type)
	assert.Equal(t, s.ID.String(), hello.Session)

	send(t, conn, Message{Type: "visibility", Hidden: true})
	require.Eventually(t, func() bool { return s.View().Hidden }, time.Second, 5*time.Millisecond)

	h.clk.Advance(5 * time.Second)
	start := readFrame(t, conn)
	assert.Equal(t, "lifecycle", start.Type)
	assert.Equal(t, "idle-start", start.Kind)
	assert.Equal(t, "hidden", start.Reason)
	require.NotNil(t, start.IdleSince)

	h.clk.Advance(2 * time.Second)
	send(t, conn, Message{Type: "visibility", Hidden: false})
	end := readFrame(t, conn)
	assert.Equal(t, "idle-end", end.Kind)
	assert.Equal(t, "visible", end.Reason)
	assert.Equal(t, int64(2000), end.IdleMs)
}

func TestPingAndErrors(t *testing.T) {
	h := newHarness(t)
	s, err := h.sessions.Create()
	require.NoError(t, err)

	conn, _, err := h.dial(t, s.ID.String())
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	send(t, conn, Message{Type: "ping"})
	assert.Equal(t, "pong", readFrame(t, conn).Type)

	send(t, conn, Message{Type: "activity", Kind: "blink"})
	assert.Equal(t, "error", readFrame(t, conn).Type)

	send(t, conn, Message{Type: "teleport"})
	f := readFrame(t, conn)
	assert.Equal(t, "error", f.Type)
	assert.Equal(t, "unknown message type", f.Message)
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t)

	_, resp, err := h.dial(t, "not-a-session")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
