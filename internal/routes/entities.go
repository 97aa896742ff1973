package routes

import (
	"MediDesk/internal/audit"
	"MediDesk/internal/ipc"
	"MediDesk/internal/notify"
	"MediDesk/internal/schema"
)

// assetListSchema types the asset list response; the rest of the table is
// still untyped and validates pass-through.
var assetListSchema = schema.MustCompile([]byte(`{
	"type": "object",
	"properties": {
		"success": {"type": "boolean"},
		"result": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": ["string", "number"]},
					"name": {"type": "string"}
				},
				"required": ["id", "name"]
			}
		}
	},
	"required": ["success"]
}`))

// Entities is the full CRUD surface of the client, one row per backend
// resource.
var Entities = []Entity{
	{Name: "asset", APIPath: "/api/asset", ListResultSchema: assetListSchema},
	{Name: "medicine", APIPath: "/api/medicine"},
	{Name: "patient", APIPath: "/api/patient"},
	{Name: "encounter", APIPath: "/api/encounter"},
	{Name: "supplier", APIPath: "/api/supplier"},
	{Name: "ward", APIPath: "/api/ward"},
	{Name: "staff", APIPath: "/api/staff"},
	{Name: "diagnosis", APIPath: "/api/diagnosis"},
	{Name: "prescription", APIPath: "/api/prescription"},
	{Name: "produksi/formula", APIPath: "/api/produksi/formula"},
	{Name: "produksi/batch", APIPath: "/api/produksi/batch"},
}

// Modules assembles the complete static route table. This list is the
// whole dispatch surface: nothing is discovered at runtime.
func Modules(push PushChannel, center *notify.Center, recorder *audit.Recorder) []ipc.Module {
	modules := []ipc.Module{
		Auth(push),
		Notifications(center),
	}
	if recorder != nil {
		modules = append(modules, Audit(recorder))
	}
	for _, e := range Entities {
		modules = append(modules, CRUD(e))
	}
	return modules
}
