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

// Package agent defines agents as named state machines whose transitions are
// actions.
//
// An Agent owns a set of Handlers. Each handler declares the states it may
// fire from; a handler with no predecessor states is an initializer and is
// reachable only when a process is created. Handler input models are explicit
// parameter descriptors (see pkg/schema), introspected once at startup.
package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/procyon-ai/procyon/pkg/filememory"
	"github.com/procyon-ai/procyon/pkg/schema"
)

// Reserved state names. UNINITIALIZED is virtual and never stored; the others
// are written by the execution runner and may not be declared as predecessor
// states except for the error states, which are retryable.
const (
	StateUninitialized  = "UNINITIALIZED"
	StateProcessing     = "processing"
	StateTerminated     = "terminated"
	StateHTTPError      = "http_error"
	StateUnhandledError = "unhandled_error"
)

// ProcessContext carries per-request process scope into a handler. Handlers
// that spawn child work must propagate it explicitly.
type ProcessContext struct {
	ProcessID   string
	CallbackURL string
}

// HandlerFunc is the executable body of an action. It receives the validated
// input body. The returned value is either a State (named transition), or any
// JSON-encodable value (the process terminates). Returning a *HTTPError
// records a domain HTTP error; any other error records an unhandled error.
type HandlerFunc func(ctx context.Context, pc ProcessContext, input map[string]any) (any, error)

// State is a named transition returned by a handler: the process moves to
// state Name carrying Data.
type State struct {
	Name string
	Data any
}

// HTTPError is a deliberate HTTP-style failure signaled by a handler.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}

// NewHTTPError builds a handler error carrying an HTTP status code.
func NewHTTPError(statusCode int, detail string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Detail: detail}
}

// Handler describes one action: its input model, the predecessor states it
// may fire from, and its body.
type Handler struct {
	Name        string
	Description string

	// AllowedStates is the set of predecessor states this action may fire
	// from. Empty means the handler is an initializer.
	AllowedStates []string

	// TransitionsTo optionally names the states this action may produce.
	// Checked against the agent's known states at startup; informational for
	// the published contract, not part of the guard.
	TransitionsTo []string

	Params []schema.Param
	Fn     HandlerFunc

	// Input is derived from Params by AddHandler.
	Input *schema.InputSchema
}

// IsInitializer reports whether this action creates a new process.
func (h *Handler) IsInitializer() bool {
	return len(h.AllowedStates) == 0
}

// Agent is a named, immutable-after-start collection of action handlers.
type Agent struct {
	Name        string
	Description string

	// Files is the blob-style file memory shared by the machine; set by the
	// machine before start, nil when none is configured.
	Files filememory.Memory

	handlers map[string]*Handler
	order    []string
}

// New creates an empty agent.
func New(name string) *Agent {
	return &Agent{
		Name:     name,
		handlers: make(map[string]*Handler),
	}
}

// AddHandler registers an action on the agent, deriving its input schema.
// Reserved states may not be used as predecessors except the error states.
func (a *Agent) AddHandler(h Handler) error {
	if h.Name == "" {
		return fmt.Errorf("agent %q: handler with empty name", a.Name)
	}
	if _, exists := a.handlers[h.Name]; exists {
		return fmt.Errorf("agent %q: duplicate handler %q", a.Name, h.Name)
	}
	if h.Fn == nil {
		return fmt.Errorf("agent %q: handler %q has no body", a.Name, h.Name)
	}
	for _, s := range h.AllowedStates {
		switch s {
		case StateUninitialized, StateProcessing:
			return fmt.Errorf("agent %q: handler %q may not fire from reserved state %q", a.Name, h.Name, s)
		}
	}

	input, err := schema.Derive(h.Name, h.Params)
	if err != nil {
		return fmt.Errorf("agent %q: %w", a.Name, err)
	}
	h.Input = input

	hc := h
	a.handlers[h.Name] = &hc
	a.order = append(a.order, h.Name)
	return nil
}

// Handler returns the named action handler.
func (a *Agent) Handler(name string) (*Handler, bool) {
	h, ok := a.handlers[name]
	return h, ok
}

// Handlers returns all handlers, initializers first, declaration order
// otherwise. The route builder relies on this ordering for a deterministic
// published contract.
func (a *Agent) Handlers() []*Handler {
	out := make([]*Handler, 0, len(a.order))
	for _, name := range a.order {
		if a.handlers[name].IsInitializer() {
			out = append(out, a.handlers[name])
		}
	}
	for _, name := range a.order {
		if !a.handlers[name].IsInitializer() {
			out = append(out, a.handlers[name])
		}
	}
	return out
}

// AvailableActions returns the sorted set of actions permitted from state.
func (a *Agent) AvailableActions(state string) []string {
	var actions []string
	for _, name := range a.order {
		for _, s := range a.handlers[name].AllowedStates {
			if s == state {
				actions = append(actions, name)
				break
			}
		}
	}
	sort.Strings(actions)
	return actions
}

// Validate checks cross-handler invariants: at least one initializer exists
// and every declared transition target is a known state.
func (a *Agent) Validate() error {
	known := map[string]bool{
		StateTerminated:     true,
		StateHTTPError:      true,
		StateUnhandledError: true,
	}
	hasInitializer := false
	for _, h := range a.handlers {
		if h.IsInitializer() {
			hasInitializer = true
		}
		for _, s := range h.AllowedStates {
			known[s] = true
		}
	}
	if !hasInitializer {
		return fmt.Errorf("agent %q has no initializer action", a.Name)
	}
	for _, h := range a.handlers {
		for _, s := range h.TransitionsTo {
			if !known[s] {
				return fmt.Errorf("agent %q: handler %q transitions to unknown state %q", a.Name, h.Name, s)
			}
		}
	}
	return nil
}
