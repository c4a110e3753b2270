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

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procyon-ai/procyon/pkg/schema"
)

func noop(_ context.Context, _ ProcessContext, _ map[string]any) (any, error) {
	return nil, nil
}

func TestAddHandlerRejectsReservedPredecessors(t *testing.T) {
	a := New("test")

	err := a.AddHandler(Handler{Name: "bad", AllowedStates: []string{StateUninitialized}, Fn: noop})
	assert.Error(t, err)

	err = a.AddHandler(Handler{Name: "bad2", AllowedStates: []string{StateProcessing}, Fn: noop})
	assert.Error(t, err)

	// Error states are retryable predecessors.
	err = a.AddHandler(Handler{Name: "retry", AllowedStates: []string{StateHTTPError}, Fn: noop})
	assert.NoError(t, err)
}

func TestAddHandlerRejectsDuplicates(t *testing.T) {
	a := New("test")
	require.NoError(t, a.AddHandler(Handler{Name: "go", Fn: noop}))
	assert.Error(t, a.AddHandler(Handler{Name: "go", Fn: noop}))
}

func TestAddHandlerDerivesInputSchema(t *testing.T) {
	a := New("test")
	require.NoError(t, a.AddHandler(Handler{
		Name:   "go",
		Params: []schema.Param{{Name: "x", Type: schema.TypeInteger}},
		Fn:     noop,
	}))

	h, ok := a.Handler("go")
	require.True(t, ok)
	require.NotNil(t, h.Input)
	assert.Equal(t, "go", h.Input.Action)

	err := a.AddHandler(Handler{
		Name:   "broken",
		Params: []schema.Param{{Name: "x", Type: "mystery"}},
		Fn:     noop,
	})
	assert.Error(t, err, "unknown parameter types must fail at registration")
}

func TestHandlersOrderInitializersFirst(t *testing.T) {
	a := New("test")
	require.NoError(t, a.AddHandler(Handler{Name: "advance", AllowedStates: []string{"ready"}, Fn: noop}))
	require.NoError(t, a.AddHandler(Handler{Name: "begin", Fn: noop}))
	require.NoError(t, a.AddHandler(Handler{Name: "alt_begin", Fn: noop}))

	var names []string
	for _, h := range a.Handlers() {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"begin", "alt_begin", "advance"}, names)
}

func TestAvailableActionsSorted(t *testing.T) {
	a := New("test")
	require.NoError(t, a.AddHandler(Handler{Name: "zeta", AllowedStates: []string{"ready"}, Fn: noop}))
	require.NoError(t, a.AddHandler(Handler{Name: "alpha", AllowedStates: []string{"ready", "done"}, Fn: noop}))
	require.NoError(t, a.AddHandler(Handler{Name: "begin", Fn: noop}))

	assert.Equal(t, []string{"alpha", "zeta"}, a.AvailableActions("ready"))
	assert.Equal(t, []string{"alpha"}, a.AvailableActions("done"))
	assert.Empty(t, a.AvailableActions("elsewhere"))
}

func TestValidateRequiresInitializer(t *testing.T) {
	a := New("test")
	require.NoError(t, a.AddHandler(Handler{Name: "advance", AllowedStates: []string{"ready"}, Fn: noop}))
	assert.Error(t, a.Validate())

	require.NoError(t, a.AddHandler(Handler{Name: "begin", Fn: noop}))
	assert.NoError(t, a.Validate())
}

func TestValidateChecksTransitionTargets(t *testing.T) {
	a := New("test")
	require.NoError(t, a.AddHandler(Handler{
		Name:          "begin",
		TransitionsTo: []string{"nowhere"},
		Fn:            noop,
	}))
	assert.Error(t, a.Validate())

	b := New("test2")
	require.NoError(t, b.AddHandler(Handler{
		Name:          "begin",
		TransitionsTo: []string{"ready", StateTerminated},
		Fn:            noop,
	}))
	require.NoError(t, b.AddHandler(Handler{Name: "advance", AllowedStates: []string{"ready"}, Fn: noop}))
	assert.NoError(t, b.Validate())
}

func TestIsInitializer(t *testing.T) {
	assert.True(t, (&Handler{Name: "h"}).IsInitializer())
	assert.False(t, (&Handler{Name: "h", AllowedStates: []string{"ready"}}).IsInitializer())
}

func TestResolveImplementation(t *testing.T) {
	RegisterImplementation("test.Resolvable", func(name string, _ map[string]any) (*Agent, error) {
		return New(name), nil
	})

	f, err := ResolveImplementation("test.Resolvable")
	require.NoError(t, err)
	a, err := f("demo", nil)
	require.NoError(t, err)
	assert.Equal(t, "demo", a.Name)

	_, err = ResolveImplementation("test.Missing")
	assert.Error(t, err)
}
