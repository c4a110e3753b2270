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
	"fmt"
	"net/http"

	"github.com/procyon-ai/procyon/pkg/agent"
	"github.com/procyon-ai/procyon/pkg/eventstore"
)

// Status is the public view of a process: its latest state and the actions
// permitted from it.
type Status struct {
	ProcessID        string   `json:"process_id"`
	State            string   `json:"state"`
	Data             any      `json:"data"`
	AvailableActions []string `json:"available_actions"`
}

// latestEvent reduces the process log to the event with the greatest date.
// Returns nil when the process has no events.
func (m *Machine) latestEvent(ctx context.Context, processID string) (*eventstore.Event, error) {
	it, err := m.store.Find(ctx, eventstore.Collection, map[string]any{
		"process_id": processID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query process %s: %w", processID, err)
	}
	defer it.Close(ctx)

	var latest *eventstore.Event
	for it.Next(ctx) {
		e := it.Event()
		if latest == nil || e.Date > latest.Date {
			latest = e
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan process %s: %w", processID, err)
	}
	return latest, nil
}

// renderStatus maps the latest event of a process onto an HTTP status code
// and response body. A nil event means the process is unknown.
func renderStatus(a *agent.Agent, processID string, latest *eventstore.Event) (int, any) {
	if latest == nil {
		return http.StatusNotFound, detailBody("Process not found")
	}

	switch latest.State {
	case agent.StateUnhandledError:
		return http.StatusInternalServerError, latest.Data

	case agent.StateHTTPError:
		code := http.StatusInternalServerError
		detail := any(nil)
		if data, ok := latest.Data.(map[string]any); ok {
			if c, ok := asInt(data["status_code"]); ok {
				code = c
			}
			detail = data["detail"]
		}
		return code, map[string]any{"detail": detail}

	default:
		actions := a.AvailableActions(latest.State)
		if actions == nil {
			actions = []string{}
		}
		return http.StatusOK, Status{
			ProcessID:        processID,
			State:            latest.State,
			Data:             latest.Data,
			AvailableActions: actions,
		}
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func detailBody(detail any) map[string]any {
	return map[string]any{"detail": detail}
}
