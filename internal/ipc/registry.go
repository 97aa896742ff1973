package ipc

import (
	"errors"
	"fmt"
	"strings"

	"MediDesk/internal/schema"
)

// Export is one named procedure inside a module. An empty or "default"
// name registers under the module path alone.
type Export struct {
	Name         string
	Handler      HandlerFunc
	ArgsSchema   *schema.Schema
	ResultSchema *schema.Schema
	Middlewares  []Middleware
}

// Module is a static group of procedures sharing a path prefix,
// middlewares, and fallback schemas. The route set is an explicit table
// built at startup, so it is statically verifiable; nothing is discovered
// from the filesystem at runtime.
type Module struct {
	Path           string // slash-delimited, e.g. "produksi/formula"
	RequireSession bool
	Middlewares    []Middleware
	ArgsSchema     *schema.Schema
	ResultSchema   *schema.Schema
	Exports        []Export
}

// ChannelName derives the channel for an export: path segments joined by
// colons, with the export name appended unless it is the default.
func ChannelName(path, export string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	channel := strings.Join(segments, ":")
	if export != "" && export != "default" {
		channel += ":" + export
	}
	return channel
}

// RegisterModules registers every export of every module. A module that
// fails for its own reasons (empty path, nil handler) is logged and
// skipped so one bad module cannot take down the rest of the route
// surface; a duplicate channel aborts immediately, since proceeding would
// leave the route table ambiguous.
func (r *Router) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := r.registerModule(m); err != nil {
			var dup *DuplicateRouteError
			if errors.As(err, &dup) {
				return err
			}
			r.logger.Warn("skipping module", "path", m.Path, "error", err)
		}
	}
	return nil
}

func (r *Router) registerModule(m Module) error {
	if strings.Trim(m.Path, "/") == "" {
		return fmt.Errorf("module path cannot be empty")
	}
	if len(m.Exports) == 0 {
		return fmt.Errorf("module %q has no exports", m.Path)
	}

	for _, export := range m.Exports {
		middlewares := make([]Middleware, 0, len(m.Middlewares)+len(export.Middlewares)+1)
		middlewares = append(middlewares, m.Middlewares...)
		if m.RequireSession {
			middlewares = append(middlewares, WithSession())
		}
		middlewares = append(middlewares, export.Middlewares...)

		argsSchema := export.ArgsSchema
		if argsSchema == nil {
			argsSchema = m.ArgsSchema
		}
		resultSchema := export.ResultSchema
		if resultSchema == nil {
			resultSchema = m.ResultSchema
		}

		err := r.Register(ChannelName(m.Path, export.Name), export.Handler,
			WithArgsSchema(argsSchema),
			WithResultSchema(resultSchema),
			WithMiddlewares(middlewares...))
		if err != nil {
			return err
		}
	}
	return nil
}
