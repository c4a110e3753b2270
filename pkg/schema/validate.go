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

package schema

import (
	"fmt"
	"math"
	"strings"
)

// Detail is one entry of a validation failure report.
type Detail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError reports why a request body failed validation.
// The controller maps it to HTTP 422 with the Details list as body.
type ValidationError struct {
	Details []Detail
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		msgs = append(msgs, fmt.Sprintf("%s: %s", strings.Join(d.Loc, "."), d.Msg))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Validate checks body against the schema and returns the normalized input:
// every required field present, unknown fields rejected, defaults substituted
// for missing optional fields, and numeric coercion applied. On failure the
// body is left untouched and a *ValidationError is returned.
func (s *InputSchema) Validate(body map[string]any) (map[string]any, *ValidationError) {
	var details []Detail
	out := make(map[string]any, len(s.Params))

	declared := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		declared[p.Name] = true
		v, ok := body[p.Name]
		if !ok {
			if p.Required() {
				details = append(details, Detail{
					Loc:  []string{"body", p.Name},
					Msg:  "field required",
					Type: "missing",
				})
				continue
			}
			out[p.Name] = p.Default
			continue
		}
		coerced, err := coerceValue(p, v, []string{"body", p.Name})
		if err != nil {
			details = append(details, *err)
			continue
		}
		out[p.Name] = coerced
	}

	for name := range body {
		if !declared[name] {
			details = append(details, Detail{
				Loc:  []string{"body", name},
				Msg:  "extra fields not permitted",
				Type: "extra_forbidden",
			})
		}
	}

	if len(details) > 0 {
		return nil, &ValidationError{Details: details}
	}
	return out, nil
}

// coerceValue checks v against the parameter type, applying the only permitted
// coercion: between numerically compatible types (an integral float for an
// integer field, any int or float for a number field).
func coerceValue(p Param, v any, loc []string) (any, *Detail) {
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, typeDetail(loc, "str")
		}
		return s, nil

	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, typeDetail(loc, "bool")
		}
		return b, nil

	case TypeInteger:
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, typeDetail(loc, "int")
			}
			return int64(n), nil
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		}
		return nil, typeDetail(loc, "int")

	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, typeDetail(loc, "float")

	case TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, typeDetail(loc, "dict")
		}
		if len(p.Fields) == 0 {
			return m, nil
		}
		nested := &InputSchema{Action: p.Name, Params: p.Fields}
		coerced, verr := nested.Validate(m)
		if verr != nil {
			// Re-root nested locations under the parent field.
			d := verr.Details[0]
			return nil, &Detail{
				Loc:  append(append([]string{}, loc...), d.Loc[1:]...),
				Msg:  d.Msg,
				Type: d.Type,
			}
		}
		return coerced, nil

	case TypeArray:
		items, ok := v.([]any)
		if !ok {
			return nil, typeDetail(loc, "list")
		}
		if p.Items == nil {
			return items, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			coerced, d := coerceValue(*p.Items, item, append(append([]string{}, loc...), fmt.Sprint(i)))
			if d != nil {
				return nil, d
			}
			out[i] = coerced
		}
		return out, nil
	}
	return nil, typeDetail(loc, p.Type)
}

// checkValue verifies a declared default against its parameter type.
func checkValue(p Param, v any) error {
	switch p.Type {
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
	case TypeInteger:
		switch n := v.(type) {
		case int, int64:
		case float64:
			if n != math.Trunc(n) {
				return fmt.Errorf("expected integer, got %v", v)
			}
		default:
			return fmt.Errorf("expected integer, got %T", v)
		}
	case TypeNumber:
		switch v.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
	case TypeArray:
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
	}
	return nil
}

func typeDetail(loc []string, want string) *Detail {
	return &Detail{
		Loc:  append([]string{}, loc...),
		Msg:  fmt.Sprintf("value is not a valid %s", want),
		Type: "type_error." + want,
	}
}
