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

package machine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/procyon-ai/procyon/pkg/agent"
	"github.com/procyon-ai/procyon/pkg/eventstore"
	"github.com/procyon-ai/procyon/pkg/schema"
)

// Execution modes selected per request via the execution-mode header.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// Request headers read by the controller.
const (
	HeaderCallbackURL   = "callback-url"
	HeaderExecutionMode = "execution-mode"
)

// handleAction returns the request handler for one action. Per request it
// validates the body, resolves the process, guards the transition, appends
// the processing event, and dispatches the runner in the selected mode.
// asProgram marks the /programs mount, which mints a fresh process.
func (m *Machine) handleAction(a *agent.Agent, h *agent.Handler, asProgram bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, verr := decodeBody(r, h.Input)
		if verr != nil {
			respond(w, http.StatusUnprocessableEntity, map[string]any{"detail": verr.Details})
			return
		}

		pc := agent.ProcessContext{
			CallbackURL: r.Header.Get(HeaderCallbackURL),
		}
		mode := executionMode(r, pc.CallbackURL)

		if asProgram {
			pc.ProcessID = primitive.NewObjectID().Hex()
		} else {
			pc.ProcessID = chi.URLParam(r, "process_id")
		}

		// The per-process lock serializes resolve, guard, and the
		// processing insert, so concurrent requests cannot both pass the
		// guard from the same predecessor state. The runner itself executes
		// outside the lock.
		m.locks.Lock(pc.ProcessID)

		state := agent.StateUninitialized
		if !asProgram {
			latest, err := m.latestEvent(r.Context(), pc.ProcessID)
			if err != nil {
				m.locks.Unlock(pc.ProcessID)
				slog.Error("Failed to resolve process", "process_id", pc.ProcessID, "error", err)
				respond(w, http.StatusInternalServerError, detailBody("Failed to resolve process"))
				return
			}
			if latest == nil {
				m.locks.Unlock(pc.ProcessID)
				respond(w, http.StatusNotFound, detailBody("Process not found"))
				return
			}
			state = latest.State
		}

		if !transitionAllowed(h, state) {
			m.locks.Unlock(pc.ProcessID)
			respond(w, http.StatusConflict, detailBody(
				fmt.Sprintf("Action %q cannot process state %q", h.Name, state)))
			return
		}

		processing := &eventstore.Event{
			ProcessID: pc.ProcessID,
			State:     agent.StateProcessing,
			Data:      map[string]any{"action": h.Name, "body": body},
			Date:      m.clock.Now(),
		}
		if err := m.store.Insert(r.Context(), eventstore.Collection, processing); err != nil {
			m.locks.Unlock(pc.ProcessID)
			slog.Error("Failed to append processing event",
				"process_id", pc.ProcessID, "action", h.Name, "error", err)
			respond(w, http.StatusInternalServerError, detailBody("Failed to record process event"))
			return
		}
		m.locks.Unlock(pc.ProcessID)

		// The runner must survive a client disconnect; it finishes and
		// appends its terminal event regardless.
		runCtx := context.WithoutCancel(r.Context())

		if mode == ModeAsync {
			go m.run(runCtx, a, h, pc, body)
			respond(w, http.StatusAccepted, map[string]any{"process_id": pc.ProcessID})
			return
		}

		latest := m.run(runCtx, a, h, pc, body)
		code, resp := renderStatus(a, pc.ProcessID, latest)
		respond(w, code, resp)
	}
}

// handleStatus returns the status endpoint handler for an agent.
func (m *Machine) handleStatus(a *agent.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		processID := chi.URLParam(r, "process_id")
		latest, err := m.latestEvent(r.Context(), processID)
		if err != nil {
			slog.Error("Failed to resolve process", "process_id", processID, "error", err)
			respond(w, http.StatusInternalServerError, detailBody("Failed to resolve process"))
			return
		}
		code, resp := renderStatus(a, processID, latest)
		respond(w, code, resp)
	}
}

// transitionAllowed is the state guard: initializers fire only from the
// virtual uninitialized state, other actions only from their declared
// predecessor states.
func transitionAllowed(h *agent.Handler, state string) bool {
	if h.IsInitializer() {
		return state == agent.StateUninitialized
	}
	for _, s := range h.AllowedStates {
		if s == state {
			return true
		}
	}
	return false
}

// executionMode resolves the effective mode: the execution-mode header when
// supplied (lowercased), else async when a callback URL is present, else
// sync. Unknown values fall back to async, matching the header's intent of
// not blocking the caller.
func executionMode(r *http.Request, callbackURL string) string {
	if mode := r.Header.Get(HeaderExecutionMode); mode != "" {
		if strings.ToLower(mode) == ModeSync {
			return ModeSync
		}
		return ModeAsync
	}
	if callbackURL != "" {
		return ModeAsync
	}
	return ModeSync
}

// decodeBody parses and validates the request body against the action's
// input schema. An empty body is treated as an empty object so actions
// without required parameters can be invoked bare.
func decodeBody(r *http.Request, input *schema.InputSchema) (map[string]any, *schema.ValidationError) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &schema.ValidationError{Details: []schema.Detail{{
			Loc:  []string{"body"},
			Msg:  "failed to read request body",
			Type: "value_error",
		}}}
	}

	body := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, &schema.ValidationError{Details: []schema.Detail{{
				Loc:  []string{"body"},
				Msg:  "invalid JSON body",
				Type: "value_error.jsondecode",
			}}}
		}
	}
	return input.Validate(body)
}

// respond writes a JSON response body with the given status code.
func respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		slog.Debug("Failed to write response", "error", err)
	}
}
