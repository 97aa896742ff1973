package routes

import (
	"context"

	"MediDesk/internal/audit"
	"MediDesk/internal/ipc"
	"MediDesk/internal/notify"
	"MediDesk/internal/schema"
)

var notificationReadSchema = schema.MustCompile([]byte(`{
	"type": "object",
	"properties": {
		"id": {"type": "string", "minLength": 1}
	},
	"required": ["id"]
}`))

// Notifications builds the module over the in-memory notification center.
func Notifications(center *notify.Center) ipc.Module {
	return ipc.Module{
		Path:           "notification",
		RequireSession: true,
		Exports: []ipc.Export{
			{
				Name: "list",
				Handler: func(ctx context.Context, req *ipc.Request) (any, error) {
					return ipc.OK(center.List()), nil
				},
			},
			{
				Name:       "read",
				ArgsSchema: notificationReadSchema,
				Handler: func(ctx context.Context, req *ipc.Request) (any, error) {
					id := req.Input.(map[string]any)["id"].(string)
					if !center.MarkRead(id) {
						return &ipc.Response{Success: false, Error: "notification not found", Kind: ipc.KindNotFound}, nil
					}
					return &ipc.Response{Success: true, Message: "marked read"}, nil
				},
			},
			{
				Name: "unread",
				Handler: func(ctx context.Context, req *ipc.Request) (any, error) {
					return ipc.OK(center.Unread()), nil
				},
			},
			{
				Name: "clear",
				Handler: func(ctx context.Context, req *ipc.Request) (any, error) {
					center.Clear()
					return &ipc.Response{Success: true, Message: "cleared"}, nil
				},
			},
		},
	}
}

var auditRecentSchema = schema.MustCompile([]byte(`{
	"type": ["object", "null"],
	"properties": {
		"limit": {"type": "number", "minimum": 1}
	}
}`))

// Audit exposes the recent dispatch audit entries.
func Audit(recorder *audit.Recorder) ipc.Module {
	return ipc.Module{
		Path:           "audit",
		RequireSession: true,
		Exports: []ipc.Export{
			{
				Name:       "recent",
				ArgsSchema: auditRecentSchema,
				Handler: func(ctx context.Context, req *ipc.Request) (any, error) {
					limit := 0
					if obj, ok := req.Input.(map[string]any); ok {
						if v, ok := obj["limit"].(float64); ok {
							limit = int(v)
						}
					}
					entries, err := recorder.Recent(ctx, limit)
					if err != nil {
						return nil, err
					}
					return ipc.OK(entries), nil
				},
			},
		},
	}
}
