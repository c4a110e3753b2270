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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/procyon-ai/procyon/pkg/agent"
	"github.com/procyon-ai/procyon/pkg/eventstore"
)

// run executes a handler and appends exactly one trailing event: a named
// transition, terminated, http_error, or unhandled_error. It then delivers
// the callback when one was requested. The caller must already have appended
// the processing event.
func (m *Machine) run(ctx context.Context, a *agent.Agent, h *agent.Handler, pc agent.ProcessContext, input map[string]any) *eventstore.Event {
	result, err := m.invoke(ctx, pc, h, input)

	e := &eventstore.Event{
		ProcessID: pc.ProcessID,
		Date:      m.clock.Now(),
	}

	switch {
	case err == nil:
		if st, ok := asState(result); ok {
			e.State = st.Name
			e.Data = st.Data
		} else {
			e.State = agent.StateTerminated
			e.Data = result
		}

	default:
		var httpErr *agent.HTTPError
		if errors.As(err, &httpErr) {
			e.State = agent.StateHTTPError
			e.Data = map[string]any{
				"detail":      httpErr.Detail,
				"status_code": httpErr.StatusCode,
			}
			if httpErr.StatusCode >= http.StatusInternalServerError {
				slog.Error("Handler failed",
					"agent", a.Name, "action", h.Name, "process_id", pc.ProcessID,
					"status_code", httpErr.StatusCode, "detail", httpErr.Detail)
			} else {
				slog.Debug("Handler rejected request",
					"agent", a.Name, "action", h.Name, "process_id", pc.ProcessID,
					"status_code", httpErr.StatusCode, "detail", httpErr.Detail)
			}
		} else {
			e.State = agent.StateUnhandledError
			e.Data = map[string]any{"error": err.Error()}
			slog.Error("Handler raised unhandled error",
				"agent", a.Name, "action", h.Name, "process_id", pc.ProcessID,
				"error", err)
		}
	}

	if err := m.store.Insert(ctx, eventstore.Collection, e); err != nil {
		slog.Error("Failed to append terminal event",
			"agent", a.Name, "process_id", pc.ProcessID, "state", e.State, "error", err)
		return e
	}

	if pc.CallbackURL != "" {
		m.deliverCallback(ctx, a, pc, e)
	}
	return e
}

// invoke calls the handler body, converting a panic into an error so the
// runner still appends its terminal event.
func (m *Machine) invoke(ctx context.Context, pc agent.ProcessContext, h *agent.Handler, input map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Fn(ctx, pc, input)
}

func asState(v any) (agent.State, bool) {
	switch st := v.(type) {
	case agent.State:
		return st, true
	case *agent.State:
		if st != nil {
			return *st, true
		}
	}
	return agent.State{}, false
}

// deliverCallback POSTs the rendered status to the callback URL. Delivery
// failures are logged and never touch the event log.
func (m *Machine) deliverCallback(ctx context.Context, a *agent.Agent, pc agent.ProcessContext, latest *eventstore.Event) {
	_, body := renderStatus(a, pc.ProcessID, latest)
	payload, err := json.Marshal(body)
	if err != nil {
		slog.Warn("Failed to encode callback payload",
			"process_id", pc.ProcessID, "url", pc.CallbackURL, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.CallbackURL, bytes.NewReader(payload))
	if err != nil {
		slog.Warn("Failed to build callback request",
			"process_id", pc.ProcessID, "url", pc.CallbackURL, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		slog.Warn("Callback delivery failed",
			"process_id", pc.ProcessID, "url", pc.CallbackURL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		slog.Warn("Callback rejected",
			"process_id", pc.ProcessID, "url", pc.CallbackURL, "status", resp.StatusCode)
		return
	}
	slog.Debug("Callback delivered",
		"process_id", pc.ProcessID, "url", pc.CallbackURL, "status", resp.StatusCode)
}
