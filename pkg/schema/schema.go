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

// Package schema derives input schemas from explicit parameter descriptors and
// validates request bodies against them.
//
// Parameter descriptors are declared by agent handlers at startup; nothing here
// relies on reflection at request time. Unrecognized parameter types fail
// derivation (and therefore startup), never a request.
package schema

import (
	"fmt"

	"github.com/invopop/jsonschema"
)

// Supported parameter types.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Param describes a single handler parameter.
// A parameter is required iff it declares no default.
type Param struct {
	Name        string
	Type        string
	Default     any
	Description string

	// Fields describes nested record members when Type is "object".
	// An object with no declared fields accepts any JSON object.
	Fields []Param

	// Items describes the element type when Type is "array".
	// An array with no item descriptor accepts any JSON array.
	Items *Param
}

// Required reports whether the parameter must be present in a request body.
func (p Param) Required() bool {
	return p.Default == nil
}

// InputSchema is the canonical input schema of one action, derived once at
// startup and shared read-only between the route builder and the controller.
type InputSchema struct {
	Action string
	Params []Param
}

// Derive validates the parameter list of an action and produces its input
// schema. Parameters keep declaration order.
func Derive(action string, params []Param) (*InputSchema, error) {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("action %q: parameter with empty name", action)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("action %q: duplicate parameter %q", action, p.Name)
		}
		seen[p.Name] = true
		if err := checkParam(action, p.Name, p); err != nil {
			return nil, err
		}
	}
	return &InputSchema{Action: action, Params: params}, nil
}

func checkParam(action, loc string, p Param) error {
	switch p.Type {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
	case TypeObject:
		for _, f := range p.Fields {
			if err := checkParam(action, loc+"."+f.Name, f); err != nil {
				return err
			}
		}
	case TypeArray:
		if p.Items != nil {
			if err := checkParam(action, loc+"[]", *p.Items); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("action %q: parameter %q has unsupported type %q", action, loc, p.Type)
	}
	if p.Default != nil {
		if err := checkValue(p, p.Default); err != nil {
			return fmt.Errorf("action %q: parameter %q default: %w", action, loc, err)
		}
	}
	return nil
}

// JSONSchema renders the input schema as a JSON Schema object for the
// published OpenAPI contract.
func (s *InputSchema) JSONSchema() *jsonschema.Schema {
	out := &jsonschema.Schema{
		Type:                 "object",
		Properties:           jsonschema.NewProperties(),
		AdditionalProperties: jsonschema.FalseSchema,
	}
	for _, p := range s.Params {
		out.Properties.Set(p.Name, paramSchema(p))
		if p.Required() {
			out.Required = append(out.Required, p.Name)
		}
	}
	return out
}

func paramSchema(p Param) *jsonschema.Schema {
	js := &jsonschema.Schema{
		Type:        p.Type,
		Description: p.Description,
		Default:     p.Default,
	}
	switch p.Type {
	case TypeObject:
		if len(p.Fields) > 0 {
			js.Properties = jsonschema.NewProperties()
			for _, f := range p.Fields {
				js.Properties.Set(f.Name, paramSchema(f))
				if f.Required() {
					js.Required = append(js.Required, f.Name)
				}
			}
			js.AdditionalProperties = jsonschema.FalseSchema
		}
	case TypeArray:
		if p.Items != nil {
			js.Items = paramSchema(*p.Items)
		}
	}
	return js
}
