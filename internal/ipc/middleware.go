package ipc

import (
	"context"
	"fmt"
	"log/slog"

	"MediDesk/internal/backend"
	"MediDesk/internal/session"
)

// Request is the per-invocation context handed to handlers: the calling
// window, its resolved session (nil when unauthenticated), the validated
// input, and handles to the process-wide session store and backend client
// factory. One Request per dispatch, discarded afterwards.
type Request struct {
	WindowID int64
	Input    any
	Session  *session.Session
	Sessions *session.Store
	Backend  *backend.Factory
}

// Client returns a backend client bound to the calling window's bearer
// token, or backend.ErrNoBackendToken when none is bound.
func (r *Request) Client() (*backend.Client, error) {
	return r.Backend.ForWindow(r.WindowID)
}

// HandlerFunc executes one procedure. Returned errors are converted to
// failure responses at the dispatch boundary, never propagated raw.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Middleware wraps a handler. Chains compose so that declaration order is
// execution order: the first middleware sees the request first.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain applies middlewares to h in declaration order.
func Chain(h HandlerFunc, middlewares ...Middleware) HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// WithError converts a handler panic into an ordinary error so the
// boundary contract (failures are responses, never raised) holds even for
// handlers that blow up. Installed as a framework default on every route.
func WithError(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panicked", "window_id", req.WindowID, "panic", r)
					result = nil
					err = fmt.Errorf("internal error: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// WithSession short-circuits with ErrUnauthenticated when the calling
// window has no session, without invoking the handler.
func WithSession() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (any, error) {
			if req.Session == nil {
				return nil, ErrUnauthenticated
			}
			return next(ctx, req)
		}
	}
}
