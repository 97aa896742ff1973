package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"MediDesk/internal/backend"
	"MediDesk/internal/ipc"
	"MediDesk/internal/schema"
)

// Entity configures one CRUD surface against the backend. The ~40
// near-identical route modules of the product reduce to this one builder
// plus the table in entities.go.
type Entity struct {
	// Name is the module path, e.g. "asset" or "produksi/formula".
	Name string
	// APIPath is the backend REST prefix, e.g. "/api/asset".
	APIPath string
	// ListResultSchema, when set, validates the list response. Optional:
	// the route surface is typed incrementally.
	ListResultSchema *schema.Schema
}

var idArgsSchema = schema.MustCompile([]byte(`{
	"type": "object",
	"properties": {
		"id": {"type": ["string", "number"]}
	},
	"required": ["id"]
}`))

var listArgsSchema = schema.MustCompile([]byte(`{
	"type": ["object", "null"],
	"properties": {
		"items": {"type": "number"},
		"page": {"type": "number"},
		"depth": {"type": "number"},
		"q": {"type": "string"},
		"filter": {"type": "object"},
		"startDate": {"type": "string"},
		"endDate": {"type": "string"}
	}
}`))

var createArgsSchema = schema.MustCompile([]byte(`{"type": "object"}`))

var updateArgsSchema = schema.MustCompile([]byte(`{
	"type": "object",
	"properties": {
		"id": {"type": ["string", "number"]}
	},
	"required": ["id"]
}`))

// CRUD builds the standard session-guarded module for one entity:
// list, get, create, update, delete.
func CRUD(e Entity) ipc.Module {
	return ipc.Module{
		Path:           e.Name,
		RequireSession: true,
		Exports: []ipc.Export{
			{Name: "list", Handler: listHandler(e), ArgsSchema: listArgsSchema, ResultSchema: e.ListResultSchema},
			{Name: "get", Handler: getHandler(e), ArgsSchema: idArgsSchema},
			{Name: "create", Handler: createHandler(e), ArgsSchema: createArgsSchema},
			{Name: "update", Handler: updateHandler(e), ArgsSchema: updateArgsSchema},
			{Name: "delete", Handler: deleteHandler(e), ArgsSchema: idArgsSchema},
		},
	}
}

func listHandler(e Entity) ipc.HandlerFunc {
	return func(ctx context.Context, req *ipc.Request) (any, error) {
		client, err := req.Client()
		if err != nil {
			return nil, err
		}

		query, err := listQueryFromInput(req.Input)
		if err != nil {
			return nil, err
		}

		resp, err := client.Get(ctx, e.APIPath, query)
		if err != nil {
			return nil, err
		}
		return responseFromEnvelope(resp)
	}
}

func getHandler(e Entity) ipc.HandlerFunc {
	return func(ctx context.Context, req *ipc.Request) (any, error) {
		client, err := req.Client()
		if err != nil {
			return nil, err
		}

		resp, err := client.Get(ctx, e.APIPath+"/"+inputID(req.Input), nil)
		if err != nil {
			return nil, err
		}
		return responseFromEnvelope(resp)
	}
}

func createHandler(e Entity) ipc.HandlerFunc {
	return func(ctx context.Context, req *ipc.Request) (any, error) {
		client, err := req.Client()
		if err != nil {
			return nil, err
		}

		resp, err := client.Post(ctx, e.APIPath, req.Input)
		if err != nil {
			return nil, err
		}
		return responseFromEnvelope(resp)
	}
}

func updateHandler(e Entity) ipc.HandlerFunc {
	return func(ctx context.Context, req *ipc.Request) (any, error) {
		client, err := req.Client()
		if err != nil {
			return nil, err
		}

		resp, err := client.Put(ctx, e.APIPath+"/"+inputID(req.Input), req.Input)
		if err != nil {
			return nil, err
		}
		return responseFromEnvelope(resp)
	}
}

func deleteHandler(e Entity) ipc.HandlerFunc {
	return func(ctx context.Context, req *ipc.Request) (any, error) {
		client, err := req.Client()
		if err != nil {
			return nil, err
		}

		resp, err := client.Delete(ctx, e.APIPath+"/"+inputID(req.Input))
		if err != nil {
			return nil, err
		}
		return responseFromEnvelope(resp)
	}
}

// responseFromEnvelope converts a parsed backend envelope into the
// response crossing the process boundary, carrying payload and
// pagination through.
func responseFromEnvelope(resp *backend.Response) (*ipc.Response, error) {
	env, err := backend.ParseEnvelope(resp, nil)
	if err != nil {
		return nil, err
	}

	out := &ipc.Response{Success: true, Message: env.Message}
	if payload := env.Payload(); len(payload) > 0 {
		var result any
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
		out.Result = result
	}
	if env.Pagination != nil {
		out.Pagination = env.Pagination
	}
	return out, nil
}

// listQueryFromInput maps validated list input onto backend query
// parameters.
func listQueryFromInput(input any) (url.Values, error) {
	obj, ok := input.(map[string]any)
	if !ok {
		return nil, nil
	}

	q := backend.ListQuery{}
	if v, ok := obj["items"].(float64); ok {
		q.Items = int(v)
	}
	if v, ok := obj["page"].(float64); ok {
		q.Page = int(v)
	}
	if v, ok := obj["depth"].(float64); ok {
		q.Depth = int(v)
	}
	if v, ok := obj["q"].(string); ok {
		q.Q = v
	}
	if v, ok := obj["filter"].(map[string]any); ok {
		q.Filter = v
	}
	if v, ok := obj["startDate"].(string); ok {
		q.StartDate = v
	}
	if v, ok := obj["endDate"].(string); ok {
		q.EndDate = v
	}
	return q.Values()
}

// inputID extracts the id from validated {id} input.
func inputID(input any) string {
	obj, ok := input.(map[string]any)
	if !ok {
		return ""
	}
	return asString(obj["id"])
}
