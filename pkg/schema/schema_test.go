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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveRejectsUnknownType(t *testing.T) {
	_, err := Derive("foo", []Param{{Name: "x", Type: "decimal"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestDeriveRejectsDuplicateParam(t *testing.T) {
	_, err := Derive("foo", []Param{
		{Name: "x", Type: TypeInteger},
		{Name: "x", Type: TypeString},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate parameter")
}

func TestDeriveRejectsMistypedDefault(t *testing.T) {
	_, err := Derive("foo", []Param{{Name: "x", Type: TypeInteger, Default: "five"}})
	require.Error(t, err)
}

func TestDeriveChecksNestedFields(t *testing.T) {
	_, err := Derive("foo", []Param{{
		Name: "opts",
		Type: TypeObject,
		Fields: []Param{
			{Name: "inner", Type: "mystery"},
		},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opts.inner")
}

func TestRequiredIffNoDefault(t *testing.T) {
	assert.True(t, Param{Name: "x", Type: TypeInteger}.Required())
	assert.False(t, Param{Name: "y", Type: TypeInteger, Default: 5}.Required())
}

func TestValidateDefaultsAndRequired(t *testing.T) {
	s, err := Derive("foo", []Param{
		{Name: "x", Type: TypeInteger},
		{Name: "y", Type: TypeInteger, Default: 5},
	})
	require.NoError(t, err)

	out, verr := s.Validate(map[string]any{"x": float64(1)})
	require.Nil(t, verr)
	assert.Equal(t, int64(1), out["x"])
	assert.Equal(t, 5, out["y"])

	_, verr = s.Validate(map[string]any{})
	require.NotNil(t, verr)
	require.Len(t, verr.Details, 1)
	assert.Equal(t, []string{"body", "x"}, verr.Details[0].Loc)
	assert.Equal(t, "missing", verr.Details[0].Type)
}

func TestValidateRejectsUnknownFields(t *testing.T) {
	s, err := Derive("foo", []Param{{Name: "x", Type: TypeInteger}})
	require.NoError(t, err)

	_, verr := s.Validate(map[string]any{"x": float64(1), "extra": true})
	require.NotNil(t, verr)
	require.Len(t, verr.Details, 1)
	assert.Equal(t, "extra_forbidden", verr.Details[0].Type)
}

func TestValidateNumericCoercion(t *testing.T) {
	s, err := Derive("foo", []Param{
		{Name: "i", Type: TypeInteger},
		{Name: "f", Type: TypeNumber},
	})
	require.NoError(t, err)

	out, verr := s.Validate(map[string]any{"i": float64(3), "f": float64(2)})
	require.Nil(t, verr)
	assert.Equal(t, int64(3), out["i"])
	assert.Equal(t, float64(2), out["f"])

	_, verr = s.Validate(map[string]any{"i": 3.5, "f": float64(2)})
	require.NotNil(t, verr)
	assert.Equal(t, "type_error.int", verr.Details[0].Type)

	_, verr = s.Validate(map[string]any{"i": "3", "f": float64(2)})
	require.NotNil(t, verr)
}

func TestValidateStrictStringAndBool(t *testing.T) {
	s, err := Derive("foo", []Param{
		{Name: "s", Type: TypeString},
		{Name: "b", Type: TypeBoolean, Default: false},
	})
	require.NoError(t, err)

	_, verr := s.Validate(map[string]any{"s": 42})
	require.NotNil(t, verr)
	assert.Equal(t, "type_error.str", verr.Details[0].Type)

	_, verr = s.Validate(map[string]any{"s": "ok", "b": "true"})
	require.NotNil(t, verr)
	assert.Equal(t, "type_error.bool", verr.Details[0].Type)
}

func TestValidateNestedObject(t *testing.T) {
	s, err := Derive("foo", []Param{{
		Name: "opts",
		Type: TypeObject,
		Fields: []Param{
			{Name: "depth", Type: TypeInteger},
			{Name: "label", Type: TypeString, Default: "none"},
		},
	}})
	require.NoError(t, err)

	out, verr := s.Validate(map[string]any{"opts": map[string]any{"depth": float64(2)}})
	require.Nil(t, verr)
	opts := out["opts"].(map[string]any)
	assert.Equal(t, int64(2), opts["depth"])
	assert.Equal(t, "none", opts["label"])

	_, verr = s.Validate(map[string]any{"opts": map[string]any{"depth": "two"}})
	require.NotNil(t, verr)
	assert.Equal(t, []string{"body", "opts", "depth"}, verr.Details[0].Loc)
}

func TestValidateArrayItems(t *testing.T) {
	s, err := Derive("foo", []Param{{
		Name:  "xs",
		Type:  TypeArray,
		Items: &Param{Type: TypeInteger},
	}})
	require.NoError(t, err)

	out, verr := s.Validate(map[string]any{"xs": []any{float64(1), float64(2)}})
	require.Nil(t, verr)
	assert.Equal(t, []any{int64(1), int64(2)}, out["xs"])

	_, verr = s.Validate(map[string]any{"xs": []any{float64(1), "two"}})
	require.NotNil(t, verr)
	assert.Equal(t, []string{"body", "xs", "1"}, verr.Details[0].Loc)
}

func TestJSONSchemaRendersRequiredAndDefaults(t *testing.T) {
	s, err := Derive("foo", []Param{
		{Name: "x", Type: TypeInteger},
		{Name: "z", Type: TypeInteger, Default: 10, Description: "z is a param"},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.JSONSchema())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, []any{"x"}, doc["required"])

	props := doc["properties"].(map[string]any)
	z := props["z"].(map[string]any)
	assert.Equal(t, "z is a param", z["description"])
	assert.Equal(t, float64(10), z["default"])
}
