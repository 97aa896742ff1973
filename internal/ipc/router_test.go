package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"MediDesk/internal/backend"
	"MediDesk/internal/schema"
	"MediDesk/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T) (*Router, *session.Store) {
	t.Helper()
	logger := newTestLogger()
	store := session.NewStore(logger)
	factory := backend.NewFactory("http://localhost:0", func(windowID int64) (string, bool) {
		return store.BackendToken(windowID)
	}, logger)
	return NewRouter(store, factory, logger), store
}

func echoHandler(ctx context.Context, req *Request) (any, error) {
	return req.Input, nil
}

func TestDispatchUnknownChannel(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := r.Dispatch(context.Background(), "nope:list", nil, 1)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, KindNotFound, resp.Kind)
	assert.Contains(t, resp.Error, "nope:list")
}

func TestDispatchSuccess(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("widget:echo", echoHandler))

	resp := r.Dispatch(context.Background(), "widget:echo", json.RawMessage(`{"a":1}`), 1)
	require.True(t, resp.Success)
	assert.Equal(t, map[string]any{"a": float64(1)}, resp.Result)
}

func TestDispatchHandlerError(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("widget:fail", func(ctx context.Context, req *Request) (any, error) {
		return nil, errors.New("boom")
	}))

	resp := r.Dispatch(context.Background(), "widget:fail", nil, 1)
	assert.False(t, resp.Success)
	assert.Equal(t, "boom", resp.Error)
	assert.Equal(t, KindInternal, resp.Kind)
}

func TestDispatchHandlerPanicIsCaught(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("widget:panic", func(ctx context.Context, req *Request) (any, error) {
		panic("oops")
	}))

	resp := r.Dispatch(context.Background(), "widget:panic", nil, 1)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "oops")
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("a:b", echoHandler))

	err := r.Register("a:b", echoHandler)
	var dup *DuplicateRouteError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a:b", dup.Channel)

	// The first registration stays intact.
	resp := r.Dispatch(context.Background(), "a:b", json.RawMessage(`"x"`), 1)
	assert.True(t, resp.Success)
}

func TestArgsSchemaRejectsInvalidInput(t *testing.T) {
	r, _ := newTestRouter(t)
	argsSchema := schema.MustCompile([]byte(`{
		"type": "object",
		"properties": {"id": {"type": "number"}},
		"required": ["id"]
	}`))

	var calls int
	require.NoError(t, r.Register("widget:get", func(ctx context.Context, req *Request) (any, error) {
		calls++
		return req.Input, nil
	}, WithArgsSchema(argsSchema)))

	resp := r.Dispatch(context.Background(), "widget:get", json.RawMessage(`{"id":"x"}`), 1)
	assert.False(t, resp.Success)
	assert.Equal(t, KindValidation, resp.Kind)
	assert.Zero(t, calls, "handler must not run on invalid input")

	resp = r.Dispatch(context.Background(), "widget:get", json.RawMessage(`{"id":7}`), 1)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, calls)
}

func TestMalformedJSONInputRejected(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("widget:echo", echoHandler))

	resp := r.Dispatch(context.Background(), "widget:echo", json.RawMessage(`{broken`), 1)
	assert.False(t, resp.Success)
	assert.Equal(t, KindValidation, resp.Kind)
}

func TestResultSchemaEndToEnd(t *testing.T) {
	r, _ := newTestRouter(t)
	resultSchema := schema.MustCompile([]byte(`{
		"type": "object",
		"properties": {
			"success": {"type": "boolean"},
			"result": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"id": {"type": "number"},
						"name": {"type": "string"}
					},
					"required": ["id", "name"]
				}
			}
		},
		"required": ["success"]
	}`))

	require.NoError(t, r.Register("widget:list", func(ctx context.Context, req *Request) (any, error) {
		return OK([]map[string]any{{"id": 1, "name": "A"}}), nil
	}, WithResultSchema(resultSchema)))
	require.NoError(t, r.Register("widget:badlist", func(ctx context.Context, req *Request) (any, error) {
		return OK([]map[string]any{{"id": "x"}}), nil
	}, WithResultSchema(resultSchema)))

	resp := r.Dispatch(context.Background(), "widget:list", nil, 1)
	require.True(t, resp.Success)
	wire, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"result":[{"id":1,"name":"A"}]}`, string(wire))

	resp = r.Dispatch(context.Background(), "widget:badlist", nil, 1)
	assert.False(t, resp.Success)
	assert.Equal(t, KindValidation, resp.Kind)
}

func TestHandlerResponsePassthrough(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("widget:msg", func(ctx context.Context, req *Request) (any, error) {
		return &Response{Success: true, Message: "saved"}, nil
	}))

	resp := r.Dispatch(context.Background(), "widget:msg", nil, 1)
	require.True(t, resp.Success)
	assert.Equal(t, "saved", resp.Message)
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *recordingAuditor) Record(ctx context.Context, entry AuditEntry) {
	a.mu.Lock()
	a.entries = append(a.entries, entry)
	a.mu.Unlock()
}

func TestAuditorReceivesEntries(t *testing.T) {
	logger := newTestLogger()
	store := session.NewStore(logger)
	factory := backend.NewFactory("http://localhost:0", func(int64) (string, bool) { return "", false }, logger)
	auditor := &recordingAuditor{}
	r := NewRouter(store, factory, logger, WithAuditor(auditor))

	require.NoError(t, r.Register("widget:echo", echoHandler))
	r.Dispatch(context.Background(), "widget:echo", json.RawMessage(`1`), 9)
	r.Dispatch(context.Background(), "missing", nil, 9)

	require.Len(t, auditor.entries, 2)
	assert.Equal(t, "widget:echo", auditor.entries[0].Channel)
	assert.True(t, auditor.entries[0].Success)
	assert.EqualValues(t, 9, auditor.entries[0].WindowID)
	assert.False(t, auditor.entries[1].Success)
}

func TestChannels(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("b:x", echoHandler))
	require.NoError(t, r.Register("a:y", echoHandler))

	assert.Equal(t, []string{"a:y", "b:x"}, r.Channels())
}
