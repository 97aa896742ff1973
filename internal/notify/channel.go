package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State of the push connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAuthAck
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuthAck:
		return "awaiting_auth_ack"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Notification is a normalized push message forwarded to the UI layer.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Type      string    `json:"type"` // info, success, warning, error
	URL       string    `json:"url,omitempty"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives normalized notifications as they arrive.
type Sink func(Notification)

// wireMessage covers every frame shape the push endpoint speaks: auth
// handshake, control ping/pong, typed notification envelopes, and the
// legacy flat {title, content} form.
type wireMessage struct {
	Type         string          `json:"type,omitempty"`
	Action       string          `json:"action,omitempty"`
	Token        string          `json:"token,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Title        string          `json:"title,omitempty"`
	Content      string          `json:"content,omitempty"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	URL          string          `json:"url,omitempty"`
}

// wirePayload is the body of a typed notification envelope.
type wirePayload struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
	Body    string `json:"body,omitempty"`
	Type    string `json:"type,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Channel maintains a persistent connection to the push endpoint. After
// the socket opens it authenticates with the stored token, answers server
// keepalive pings, and forwards inbound notifications to the sink. A
// dropped socket schedules a single reconnect attempt after a fixed delay,
// reusing the last token; Disconnect cancels the loop.
type Channel struct {
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	sink           Sink
	logger         *slog.Logger

	mu             sync.Mutex
	state          State
	token          string
	conn           *websocket.Conn
	closed         bool
	reconnectTimer *time.Timer
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithReconnectDelay overrides the delay between a socket drop and the
// next connection attempt. Default 5 seconds.
func WithReconnectDelay(d time.Duration) ChannelOption {
	return func(c *Channel) { c.reconnectDelay = d }
}

// NewChannel creates a push channel for the given ws:// endpoint.
func NewChannel(url string, sink Sink, logger *slog.Logger, opts ...ChannelOption) *Channel {
	c := &Channel{
		url:            url,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: 5 * time.Second,
		sink:           sink,
		logger:         logger,
		state:          StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect stores the token and starts the connection loop. While an
// attempt or an established connection is active, further Connect calls
// only update the stored token; the state machine keeps connection
// attempts single-flight.
func (c *Channel) Connect(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	c.closed = false

	if c.state != StateDisconnected {
		return
	}
	c.state = StateConnecting
	go c.run(token)
}

// Disconnect terminates the socket and cancels any pending reconnect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
}

// run dials, authenticates, and pumps inbound messages until the socket
// drops. It owns all writes on the connection.
func (c *Channel) run(token string) {
	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Warn("push connect failed", "url", c.url, "error", err)
		c.dropAndReschedule(nil)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateAwaitingAuthAck
	c.mu.Unlock()

	if err := conn.WriteJSON(wireMessage{Type: "auth", Token: token}); err != nil {
		c.logger.Warn("push auth send failed", "error", err)
		c.dropAndReschedule(conn)
		return
	}

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.logger.Info("push socket closed", "error", err)
			c.dropAndReschedule(conn)
			return
		}
		c.handle(conn, msg)
	}
}

func (c *Channel) handle(conn *websocket.Conn, msg wireMessage) {
	switch {
	case msg.Type == "auth_ok":
		c.mu.Lock()
		if c.state == StateAwaitingAuthAck {
			c.state = StateConnected
		}
		c.mu.Unlock()
		c.logger.Info("push channel authenticated")

	case msg.Type == "control" && msg.Action == "ping":
		// Keepalive: the server drops connections that miss the echo.
		if err := conn.WriteJSON(wireMessage{Type: "control", Action: "pong"}); err != nil {
			c.logger.Warn("push pong send failed", "error", err)
		}

	case msg.Type == "notification" || msg.Type == "message":
		var payload wirePayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				c.logger.Warn("malformed push payload", "error", err)
				return
			}
		}
		c.forward(normalize(payload.Title, payload.Content, payload.Body, payload.Type, payload.URL))

	case msg.Title != "" && msg.Content != "":
		c.forward(normalize(msg.Title, msg.Content, "", "", msg.URL))
	}
}

func normalize(title, content, body, kind, url string) Notification {
	if body == "" {
		body = content
	}
	if kind == "" {
		kind = "info"
	}
	return Notification{Title: title, Body: body, Type: kind, URL: url}
}

func (c *Channel) forward(n Notification) {
	if c.sink != nil {
		c.sink(n)
	}
}

// dropAndReschedule moves to Disconnected and arms a single reconnect
// timer, unless an explicit Disconnect already ended the loop.
func (c *Channel) dropAndReschedule(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if c.conn == conn || conn == nil {
		c.conn = nil
	}
	c.state = StateDisconnected

	if c.closed || c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		if c.closed || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		token := c.token
		c.state = StateConnecting
		c.mu.Unlock()

		c.logger.Info("push reconnect attempt")
		c.run(token)
	})
}
