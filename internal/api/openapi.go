package api

import "github.com/mattjoyce/moagen/internal/auth"

type route struct {
	method, path, summary, scope string
	body                         bool
	responses                    map[string]string
}

var routes = []route{
	{"get", "/healthz", "Liveness and generation status", "", false, map[string]string{"200": "OK"}},
	{"get", "/generators", "Supported generators and function ranges", auth.ScopeToolsRead, false,
		map[string]string{"200": "Generator list"}},
	{"post", "/validate", "Validate dataset definitions and records", auth.ScopeToolsRead, true,
		map[string]string{"200": "Valid datasets and per-entry errors", "400": "Bad request"}},
	{"post", "/command", "Render MOA invocations without running them", auth.ScopeToolsRead, true,
		map[string]string{"200": "Rendered commands and per-entry errors", "400": "Bad request"}},
	{"get", "/runs", "Recent generation runs", auth.ScopeRunsRead, false,
		map[string]string{"200": "Run list"}},
	{"get", "/runs/{runID}", "One run with its dataset outcomes", auth.ScopeRunsRead, false,
		map[string]string{"200": "Run", "404": "Run not found"}},
	{"post", "/runs", "Generate datasets", auth.ScopeRunsWrite, true,
		map[string]string{"200": "Run finished (wait=true)", "202": "Run accepted", "409": "Run in progress", "422": "Invalid datasets"}},
	{"get", "/events", "Server-sent generation progress", auth.ScopeEventsRead, false,
		map[string]string{"200": "Event stream"}},
}

var datasetsRequestSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"definitions": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "example": "SEA_f_1_2_p_500_w_100_s_1000"},
		},
		"records": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"generator", "classification_functions", "num_of_samples"},
				"properties": map[string]any{
					"generator":                map[string]any{"type": "string"},
					"classification_functions": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
					"drift_points":             map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
					"drift_widths":             map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
					"num_of_samples":           map[string]any{"type": "integer"},
				},
			},
		},
	},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document describing the API routes.
func buildOpenAPIDoc() map[string]any {
	paths := map[string]any{}
	for _, rt := range routes {
		responses := map[string]any{}
		for code, desc := range rt.responses {
			responses[code] = map[string]any{"description": desc}
		}
		op := map[string]any{
			"summary":   rt.summary,
			"responses": responses,
		}
		if rt.scope != "" {
			responses["401"] = map[string]any{"description": "Unauthorized"}
			responses["403"] = map[string]any{"description": "Insufficient scope"}
			op["security"] = []any{map[string]any{"BearerAuth": []string{rt.scope}}}
		}
		if rt.body {
			op["requestBody"] = map[string]any{
				"required": true,
				"content": map[string]any{
					"application/json": map[string]any{"schema": datasetsRequestSchema},
				},
			}
		}

		item, _ := paths[rt.path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[rt.path] = item
		}
		item[rt.method] = op
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "moagen",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
