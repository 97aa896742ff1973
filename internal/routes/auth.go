package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"MediDesk/internal/backend"
	"MediDesk/internal/ipc"
	"MediDesk/internal/schema"
	"MediDesk/internal/session"
)

// PushChannel is the slice of the notification channel the auth flow
// drives: connect after login, disconnect on logout.
type PushChannel interface {
	Connect(token string)
	Disconnect()
}

var loginArgsSchema = schema.MustCompile([]byte(`{
	"type": "object",
	"properties": {
		"nik": {"type": "string", "minLength": 1},
		"password": {"type": "string", "minLength": 1}
	},
	"required": ["nik", "password"]
}`))

// loginResult is the user snapshot inside a successful login envelope.
// The backend is loose about numeric vs string ids, so both decode.
type loginResult struct {
	ID         any    `json:"id"`
	NIK        string `json:"nik"`
	Name       string `json:"name"`
	HakAksesID any    `json:"hakAksesId"`
}

// Auth builds the auth module: login populates the session store, binds
// the calling window, and brings the push channel up; logout tears it all
// down again.
func Auth(push PushChannel) ipc.Module {
	return ipc.Module{
		Path: "auth",
		Exports: []ipc.Export{
			{
				Name:       "login",
				Handler:    loginHandler(push),
				ArgsSchema: loginArgsSchema,
			},
			{
				Name:        "logout",
				Handler:     logoutHandler(push),
				Middlewares: []ipc.Middleware{ipc.WithSession()},
			},
			{
				Name:        "me",
				Handler:     meHandler,
				Middlewares: []ipc.Middleware{ipc.WithSession()},
			},
		},
	}
}

func loginHandler(push PushChannel) ipc.HandlerFunc {
	return func(ctx context.Context, req *ipc.Request) (any, error) {
		resp, err := req.Backend.Anonymous().Post(ctx, "/api/login", req.Input)
		if err != nil {
			return nil, err
		}

		env, err := backend.ParseEnvelope(resp, nil)
		if err != nil {
			return nil, err
		}

		// The backend issues its bearer token as a cookie literally
		// named "token".
		var backendToken string
		for _, cookie := range resp.Cookies {
			if cookie.Name == "token" {
				backendToken = cookie.Value
			}
		}
		if backendToken == "" {
			return nil, fmt.Errorf("login response missing token cookie")
		}

		var result loginResult
		if err := json.Unmarshal(env.Payload(), &result); err != nil {
			return nil, fmt.Errorf("failed to decode login result: %w", err)
		}

		user := &session.User{
			ID:         asString(result.ID),
			NIK:        result.NIK,
			Name:       result.Name,
			HakAksesID: asString(result.HakAksesID),
		}

		sess := req.Sessions.Create(user.ID)
		req.Sessions.AuthenticateWindow(req.WindowID, sess.Token)
		req.Sessions.SetBackendToken(req.WindowID, backendToken)
		req.Sessions.SetUser(user)

		if push != nil {
			push.Connect(backendToken)
		}

		return ipc.OK(map[string]any{
			"token": sess.Token,
			"user":  user,
		}), nil
	}
}

func logoutHandler(push PushChannel) ipc.HandlerFunc {
	return func(ctx context.Context, req *ipc.Request) (any, error) {
		req.Sessions.Delete(req.Session.Token)
		req.Sessions.ClearWindow(req.WindowID)
		if push != nil {
			push.Disconnect()
		}
		return &ipc.Response{Success: true, Message: "logged out"}, nil
	}
}

func meHandler(ctx context.Context, req *ipc.Request) (any, error) {
	user := req.Sessions.GetUser()
	if user == nil {
		return nil, ipc.ErrUnauthenticated
	}
	return ipc.OK(user), nil
}

// asString normalizes the backend's loosely typed ids.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
