package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"MediDesk/internal/ipc"
	"MediDesk/internal/notify"
	"MediDesk/internal/session"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Server is the process boundary between renderer windows and the
// dispatcher: a loopback HTTP endpoint for invocations plus a per-window
// websocket for pushed events. Each websocket connection is one window;
// closing it clears the window's session bindings.
type Server struct {
	router   *ipc.Router
	sessions *session.Store
	logger   *slog.Logger
	echo     *echo.Echo
	upgrader websocket.Upgrader

	mu           sync.Mutex
	windows      map[int64]*windowConn
	nextWindowID atomic.Int64
}

// windowConn serializes writes to one renderer socket.
type windowConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *windowConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// invokeRequest is the wire form of one invocation. Channel carries the
// legacy flat style ("asset:list"); Path the typed-procedure style
// ("asset/list"), normalized to the same channel names.
type invokeRequest struct {
	Channel string          `json:"channel,omitempty"`
	Path    string          `json:"path,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
}

var pathNormalizer = strings.NewReplacer("/", ":", ".", ":")

// NewServer creates the gateway over a populated router.
func NewServer(router *ipc.Router, sessions *session.Store, logger *slog.Logger) *Server {
	s := &Server{
		router:   router,
		sessions: sessions,
		logger:   logger,
		echo:     echo.New(),
		windows:  make(map[int64]*windowConn),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.POST("/invoke", s.handleInvoke)
	s.echo.GET("/events", s.handleEvents)

	return s
}

// Handler exposes the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("gateway listening", "addr", addr)
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server and drops all window connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id, wc := range s.windows {
		wc.conn.Close()
		delete(s.windows, id)
	}
	s.mu.Unlock()
	return s.echo.Shutdown(ctx)
}

// handleInvoke dispatches one invocation. The response is always HTTP 200
// with a {success} body; failures are payloads, not statuses.
func (s *Server) handleInvoke(c echo.Context) error {
	var req invokeRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusOK, &ipc.Response{
			Success: false,
			Error:   "malformed invoke request: " + err.Error(),
			Kind:    ipc.KindValidation,
		})
	}

	channel := req.Channel
	if channel == "" {
		channel = pathNormalizer.Replace(strings.Trim(req.Path, "/"))
	}

	windowID, _ := strconv.ParseInt(c.Request().Header.Get("X-Window-Id"), 10, 64)

	resp := s.router.Dispatch(c.Request().Context(), channel, req.Input, windowID)
	return c.JSON(http.StatusOK, resp)
}

// handleEvents upgrades a renderer window connection. The first frame
// tells the renderer its window id; afterwards the socket only carries
// pushed events until the window goes away.
func (s *Server) handleEvents(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	windowID := s.nextWindowID.Add(1)
	wc := &windowConn{conn: conn}

	s.mu.Lock()
	s.windows[windowID] = wc
	s.mu.Unlock()

	s.logger.Info("window connected", "window_id", windowID)
	if err := wc.writeJSON(map[string]any{"type": "window", "windowId": windowID}); err != nil {
		s.dropWindow(windowID)
		return nil
	}

	// Pump until the renderer goes away; inbound frames are ignored
	// (invocations arrive over /invoke).
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.dropWindow(windowID)
	return nil
}

func (s *Server) dropWindow(windowID int64) {
	s.mu.Lock()
	wc := s.windows[windowID]
	delete(s.windows, windowID)
	s.mu.Unlock()

	if wc != nil {
		wc.conn.Close()
	}
	s.sessions.ClearWindow(windowID)
	s.logger.Info("window disconnected", "window_id", windowID)
}

// Broadcast forwards a notification to every connected window. It is the
// sink end of the push channel.
func (s *Server) Broadcast(n notify.Notification) {
	s.mu.Lock()
	conns := make(map[int64]*windowConn, len(s.windows))
	for id, wc := range s.windows {
		conns[id] = wc
	}
	s.mu.Unlock()

	for id, wc := range conns {
		if err := wc.writeJSON(map[string]any{"type": "notification", "payload": n}); err != nil {
			s.logger.Warn("failed to push to window", "window_id", id, "error", err)
		}
	}
}
