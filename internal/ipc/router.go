package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"MediDesk/internal/backend"
	"MediDesk/internal/schema"
	"MediDesk/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Route is one registered procedure: a channel name, its handler, its
// middleware chain, and optional schemas for arguments and result.
type Route struct {
	Channel      string
	handler      HandlerFunc
	middlewares  []Middleware
	argsSchema   *schema.Schema
	resultSchema *schema.Schema
}

// RouteOption configures a route at registration time.
type RouteOption func(*Route)

// WithArgsSchema validates dispatch input before the handler runs.
func WithArgsSchema(s *schema.Schema) RouteOption {
	return func(r *Route) { r.argsSchema = s }
}

// WithResultSchema validates the response after the handler returns.
func WithResultSchema(s *schema.Schema) RouteOption {
	return func(r *Route) { r.resultSchema = s }
}

// WithMiddlewares appends route-level middlewares after the framework
// defaults.
func WithMiddlewares(middlewares ...Middleware) RouteOption {
	return func(r *Route) { r.middlewares = append(r.middlewares, middlewares...) }
}

// AuditEntry describes one completed dispatch for the audit log.
type AuditEntry struct {
	Channel  string
	WindowID int64
	Success  bool
	Error    string
	Duration time.Duration
}

// Auditor receives one record per completed dispatch.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Router resolves channel names to handlers and runs dispatches through
// their middleware chains. The route table is populated at startup and
// immutable afterwards; there is no unregister.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]*Route
	defaults []Middleware

	sessions *session.Store
	factory  *backend.Factory
	logger   *slog.Logger

	tracer     trace.Tracer
	dispatches metric.Int64Counter
	failures   metric.Int64Counter
	duration   metric.Float64Histogram
	auditor    Auditor
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithTelemetry attaches a tracer and meter; dispatches then emit a span
// plus count/failure/duration instruments.
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) RouterOption {
	return func(r *Router) {
		r.tracer = tracer
		if meter == nil {
			return
		}
		r.dispatches, _ = meter.Int64Counter("dispatch.count")
		r.failures, _ = meter.Int64Counter("dispatch.failures")
		r.duration, _ = meter.Float64Histogram("dispatch.duration_ms")
	}
}

// WithAuditor records every completed dispatch.
func WithAuditor(a Auditor) RouterOption {
	return func(r *Router) { r.auditor = a }
}

// NewRouter creates a router over the given session store and backend
// client factory. WithError is installed as the framework default so the
// boundary contract holds for every route.
func NewRouter(sessions *session.Store, factory *backend.Factory, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		routes:   make(map[string]*Route),
		defaults: []Middleware{WithError(logger)},
		sessions: sessions,
		factory:  factory,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a route for channel. A duplicate channel is a hard
// *DuplicateRouteError: routes are startup-time configuration and a
// collision is a programming error, not something to overwrite silently.
func (r *Router) Register(channel string, handler HandlerFunc, opts ...RouteOption) error {
	if channel == "" {
		return fmt.Errorf("channel name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("channel %q: handler cannot be nil", channel)
	}

	route := &Route{Channel: channel, handler: handler}
	for _, opt := range opts {
		opt(route)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[channel]; exists {
		return &DuplicateRouteError{Channel: channel}
	}
	r.routes[channel] = route

	r.logger.Debug("registered route", "channel", channel)
	return nil
}

// Channels returns all registered channel names, sorted.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]string, 0, len(r.routes))
	for ch := range r.routes {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// Dispatch runs one invocation: resolve the route, validate arguments, run
// the middleware chain and handler, validate the result, and return a
// response. It never panics and never returns nil; any failure along the
// way becomes a {success:false} response.
func (r *Router) Dispatch(ctx context.Context, channel string, rawInput json.RawMessage, windowID int64) (resp *Response) {
	start := time.Now()

	defer func() {
		// Mirror of WithError for anything outside the middleware chain.
		if rec := recover(); rec != nil {
			r.logger.Error("dispatch panicked", "channel", channel, "panic", rec)
			resp = Fail(fmt.Errorf("internal error: %v", rec))
		}
		r.observe(ctx, channel, windowID, resp, time.Since(start))
	}()

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "dispatch",
			trace.WithAttributes(attribute.String("channel", channel)))
		defer span.End()
	}

	r.mu.RLock()
	route := r.routes[channel]
	r.mu.RUnlock()

	if route == nil {
		return Fail(fmt.Errorf("%w: %s", ErrUnknownChannel, channel))
	}

	input, err := r.parseArgs(route, rawInput)
	if err != nil {
		return Fail(err)
	}

	req := &Request{
		WindowID: windowID,
		Input:    input,
		Session:  r.sessions.WindowSession(windowID),
		Sessions: r.sessions,
		Backend:  r.factory,
	}

	handler := Chain(route.handler, append(r.defaults, route.middlewares...)...)
	result, err := handler(ctx, req)
	if err != nil {
		return Fail(err)
	}

	resp = wrapResult(result)
	if err := r.validateResult(route, resp); err != nil {
		return Fail(err)
	}
	return resp
}

// parseArgs decodes and validates the raw input. Routes without an args
// schema still require well-formed JSON (or an empty input).
func (r *Router) parseArgs(route *Route, rawInput json.RawMessage) (any, error) {
	if route.argsSchema != nil {
		return route.argsSchema.ValidateJSON(rawInput)
	}
	if len(rawInput) == 0 {
		return nil, nil
	}
	var input any
	if err := json.Unmarshal(rawInput, &input); err != nil {
		return nil, &schema.ValidationError{Detail: fmt.Sprintf("invalid JSON input: %v", err)}
	}
	return input, nil
}

// validateResult checks the outgoing response against the route's result
// schema, using its wire form so the schema sees exactly what the UI will.
func (r *Router) validateResult(route *Route, resp *Response) error {
	if route.resultSchema == nil {
		return nil
	}
	wire, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	_, err = route.resultSchema.ValidateJSON(wire)
	return err
}

// wrapResult normalizes a handler return value into a Response. Handlers
// that already produce a *Response pass through untouched.
func wrapResult(result any) *Response {
	switch v := result.(type) {
	case *Response:
		if v == nil {
			return OK(nil)
		}
		return v
	case Response:
		return &v
	default:
		return OK(result)
	}
}

func (r *Router) observe(ctx context.Context, channel string, windowID int64, resp *Response, elapsed time.Duration) {
	success := resp != nil && resp.Success

	attrs := metric.WithAttributes(attribute.String("channel", channel))
	if r.dispatches != nil {
		r.dispatches.Add(ctx, 1, attrs)
	}
	if !success && r.failures != nil {
		r.failures.Add(ctx, 1, attrs)
	}
	if r.duration != nil {
		r.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}

	if r.auditor != nil {
		entry := AuditEntry{
			Channel:  channel,
			WindowID: windowID,
			Success:  success,
			Duration: elapsed,
		}
		if resp != nil {
			entry.Error = resp.Error
		}
		r.auditor.Record(ctx, entry)
	}

	if !success {
		r.logger.Warn("dispatch failed", "channel", channel, "window_id", windowID, "error", resp.Error)
	}
}
