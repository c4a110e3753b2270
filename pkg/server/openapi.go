// Copyright 2025 The Procyon Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/procyon-ai/procyon/pkg/agent"
	"github.com/procyon-ai/procyon/pkg/machine"
)

// buildOpenAPI renders the machine's published contract. Paths appear per
// agent with initializer actions first, mirroring route registration order.
func buildOpenAPI(m *machine.Machine, version string) map[string]any {
	paths := map[string]any{}

	for _, a := range m.Agents() {
		for _, h := range a.Handlers() {
			var path string
			if h.IsInitializer() {
				path = fmt.Sprintf("/agents/%s/programs/%s", a.Name, h.Name)
			} else {
				path = fmt.Sprintf("/agents/%s/processes/{process_id}/actions/%s", a.Name, h.Name)
			}
			paths[path] = map[string]any{"post": actionOperation(a, h)}
		}
		statusPath := fmt.Sprintf("/agents/%s/processes/{process_id}/status", a.Name)
		paths[statusPath] = map[string]any{"get": statusOperation(a)}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Procyon Agent Machine",
			"version": version,
		},
		"paths": paths,
	}
}

func actionOperation(a *agent.Agent, h *agent.Handler) map[string]any {
	op := map[string]any{
		"operationId": fmt.Sprintf("%s_%s", a.Name, h.Name),
		"tags":        []string{a.Name},
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": h.Input.JSONSchema(),
				},
			},
		},
		"parameters": actionParameters(h),
		"responses": map[string]any{
			"200": jsonResponse("Process status after synchronous execution", statusSchema()),
			"202": jsonResponse("Accepted for asynchronous execution", processIDSchema()),
			"404": jsonResponse("Process not found", detailSchema()),
			"409": jsonResponse("Action not permitted from the current state", detailSchema()),
			"422": jsonResponse("Request body failed validation", nil),
		},
	}
	if h.Description != "" {
		op["description"] = h.Description
	}
	return op
}

func statusOperation(a *agent.Agent) map[string]any {
	return map[string]any{
		"operationId": fmt.Sprintf("%s_status", a.Name),
		"tags":        []string{a.Name},
		"parameters":  []any{processIDParameter()},
		"responses": map[string]any{
			"200": jsonResponse("Current process status", statusSchema()),
			"404": jsonResponse("Process not found", detailSchema()),
		},
	}
}

func actionParameters(h *agent.Handler) []any {
	params := []any{
		headerParameter("callback-url", "URL to POST the final status to."),
		headerParameter("execution-mode", "Execution mode: sync or async."),
	}
	if !h.IsInitializer() {
		params = append([]any{processIDParameter()}, params...)
	}
	return params
}

func processIDParameter() map[string]any {
	return map[string]any{
		"name":     "process_id",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string"},
	}
}

func headerParameter(name, description string) map[string]any {
	return map[string]any{
		"name":        name,
		"in":          "header",
		"required":    false,
		"description": description,
		"schema":      map[string]any{"type": "string"},
	}
}

func jsonResponse(description string, schema any) map[string]any {
	resp := map[string]any{"description": description}
	if schema != nil {
		resp["content"] = map[string]any{
			"application/json": map[string]any{"schema": schema},
		}
	}
	return resp
}

func statusSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("process_id", &jsonschema.Schema{Type: "string"})
	props.Set("state", &jsonschema.Schema{Type: "string"})
	props.Set("data", &jsonschema.Schema{})
	props.Set("available_actions", &jsonschema.Schema{
		Type:  "array",
		Items: &jsonschema.Schema{Type: "string"},
	})
	return &jsonschema.Schema{Type: "object", Properties: props}
}

func processIDSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("process_id", &jsonschema.Schema{Type: "string"})
	return &jsonschema.Schema{Type: "object", Properties: props}
}

func detailSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("detail", &jsonschema.Schema{Type: "string"})
	return &jsonschema.Schema{Type: "object", Properties: props}
}
