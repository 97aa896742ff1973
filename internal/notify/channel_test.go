package notify

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pushServer is a scripted stand-in for the backend push endpoint.
type pushServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  []*websocket.Conn
	tokens []string
	script func(conn *websocket.Conn)
}

func newPushServer(t *testing.T, script func(conn *websocket.Conn)) *pushServer {
	t.Helper()
	ps := &pushServer{script: script}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ps.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		var auth wireMessage
		if err := conn.ReadJSON(&auth); err != nil || auth.Type != "auth" {
			conn.Close()
			return
		}

		ps.mu.Lock()
		ps.conns = append(ps.conns, conn)
		ps.tokens = append(ps.tokens, auth.Token)
		ps.mu.Unlock()

		conn.WriteJSON(wireMessage{Type: "auth_ok"})
		if ps.script != nil {
			ps.script(conn)
		}
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func (ps *pushServer) connCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.conns)
}

func (ps *pushServer) lastToken() string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.tokens) == 0 {
		return ""
	}
	return ps.tokens[len(ps.tokens)-1]
}

func TestConnectAuthenticates(t *testing.T) {
	ps := newPushServer(t, nil)

	c := NewChannel(ps.url(), nil, newTestLogger(), WithReconnectDelay(20*time.Millisecond))
	defer c.Disconnect()

	c.Connect("tok-1")
	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "tok-1", ps.lastToken())
}

func TestPingAnsweredWithPong(t *testing.T) {
	pongs := make(chan wireMessage, 4)
	ps := newPushServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(wireMessage{Type: "control", Action: "ping"})
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err == nil {
			pongs <- msg
		}
	})

	c := NewChannel(ps.url(), nil, newTestLogger(), WithReconnectDelay(time.Hour))
	defer c.Disconnect()
	c.Connect("tok-1")

	select {
	case msg := <-pongs:
		assert.Equal(t, "control", msg.Type)
		assert.Equal(t, "pong", msg.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}

	// Exactly one pong for one ping.
	select {
	case <-pongs:
		t.Fatal("unexpected second pong")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotificationForwarding(t *testing.T) {
	ps := newPushServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"notification","payload":{"title":"Stok","content":"Stok obat menipis","type":"warning","url":"/inventory"}}`))
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"title":"Shift","content":"Jadwal berubah"}`))
	})

	got := make(chan Notification, 4)
	c := NewChannel(ps.url(), func(n Notification) { got <- n }, newTestLogger(),
		WithReconnectDelay(time.Hour))
	defer c.Disconnect()
	c.Connect("tok-1")

	first := <-got
	assert.Equal(t, "Stok", first.Title)
	assert.Equal(t, "Stok obat menipis", first.Body)
	assert.Equal(t, "warning", first.Type)
	assert.Equal(t, "/inventory", first.URL)

	second := <-got
	assert.Equal(t, "Shift", second.Title)
	assert.Equal(t, "Jadwal berubah", second.Body)
	assert.Equal(t, "info", second.Type, "flat messages default to info")
}

func TestReconnectAfterDrop(t *testing.T) {
	ps := newPushServer(t, nil)

	c := NewChannel(ps.url(), nil, newTestLogger(), WithReconnectDelay(30*time.Millisecond))
	defer c.Disconnect()
	c.Connect("tok-1")

	require.Eventually(t, func() bool { return ps.connCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// Server drops the connection; the channel must come back on its own,
	// reusing the stored token.
	ps.mu.Lock()
	ps.conns[0].Close()
	ps.mu.Unlock()

	require.Eventually(t, func() bool { return ps.connCount() == 2 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "tok-1", ps.lastToken())
	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 5*time.Millisecond)
}

func TestDisconnectCancelsReconnect(t *testing.T) {
	ps := newPushServer(t, nil)

	c := NewChannel(ps.url(), nil, newTestLogger(), WithReconnectDelay(30*time.Millisecond))
	c.Connect("tok-1")

	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 5*time.Millisecond)

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, ps.connCount(), "no reconnect after explicit disconnect")
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectIsSingleFlight(t *testing.T) {
	ps := newPushServer(t, nil)

	c := NewChannel(ps.url(), nil, newTestLogger(), WithReconnectDelay(time.Hour))
	defer c.Disconnect()

	c.Connect("tok-1")
	c.Connect("tok-1")
	c.Connect("tok-1")

	require.Eventually(t, func() bool { return c.State() == StateConnected },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, ps.connCount())
}
