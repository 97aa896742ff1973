package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MediDesk/internal/backend"
	"MediDesk/internal/ipc"
	"MediDesk/internal/notify"
	"MediDesk/internal/session"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *session.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := session.NewStore(logger)
	factory := backend.NewFactory("http://localhost:0", func(windowID int64) (string, bool) {
		return store.BackendToken(windowID)
	}, logger)

	router := ipc.NewRouter(store, factory, logger)
	require.NoError(t, router.Register("widget:echo", func(ctx context.Context, req *ipc.Request) (any, error) {
		return ipc.OK(map[string]any{"input": req.Input, "windowId": req.WindowID}), nil
	}))

	s := NewServer(router, store, logger)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv, store
}

func invoke(t *testing.T, srv *httptest.Server, windowID string, body string) *ipc.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/invoke", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if windowID != "" {
		req.Header.Set("X-Window-Id", windowID)
	}

	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	var resp ipc.Response
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	return &resp
}

func TestInvokeFlatChannel(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp := invoke(t, srv, "3", `{"channel":"widget:echo","input":{"a":1}}`)
	require.True(t, resp.Success)
	result := resp.Result.(map[string]any)
	assert.Equal(t, float64(3), result["windowId"])
	assert.Equal(t, map[string]any{"a": float64(1)}, result["input"])
}

func TestInvokeTypedPath(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp := invoke(t, srv, "1", `{"path":"widget/echo","input":"x"}`)
	require.True(t, resp.Success)

	resp = invoke(t, srv, "1", `{"path":"widget.echo","input":"x"}`)
	require.True(t, resp.Success)
}

func TestInvokeUnknownChannel(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp := invoke(t, srv, "1", `{"channel":"missing:route"}`)
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.KindNotFound, resp.Kind)
}

func TestInvokeMalformedBody(t *testing.T) {
	_, srv, _ := newTestServer(t)

	resp := invoke(t, srv, "1", `{broken`)
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.KindValidation, resp.Kind)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
}

func TestEventsAssignsWindowIDs(t *testing.T) {
	_, srv, _ := newTestServer(t)

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn1.Close()
	conn2, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn2.Close()

	var hello1, hello2 map[string]any
	require.NoError(t, conn1.ReadJSON(&hello1))
	require.NoError(t, conn2.ReadJSON(&hello2))

	assert.Equal(t, "window", hello1["type"])
	assert.NotEqual(t, hello1["windowId"], hello2["windowId"])
}

func TestBroadcastReachesWindows(t *testing.T) {
	s, srv, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))

	s.Broadcast(notify.Notification{ID: "n1", Title: "Stok", Body: "menipis", Type: "warning"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		Type    string              `json:"type"`
		Payload notify.Notification `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "notification", event.Type)
	assert.Equal(t, "Stok", event.Payload.Title)
	assert.Equal(t, "warning", event.Payload.Type)
}

func TestWindowCloseClearsBindings(t *testing.T) {
	_, srv, store := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)

	var hello struct {
		WindowID int64 `json:"windowId"`
	}
	require.NoError(t, conn.ReadJSON(&hello))

	sess := store.Create("user-1")
	store.AuthenticateWindow(hello.WindowID, sess.Token)
	require.NotNil(t, store.WindowSession(hello.WindowID))

	conn.Close()

	require.Eventually(t, func() bool {
		return store.WindowSession(hello.WindowID) == nil
	}, 2*time.Second, 10*time.Millisecond)
}
