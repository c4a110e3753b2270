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

package machine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procyon-ai/procyon/pkg/agent"
	"github.com/procyon-ai/procyon/pkg/eventstore/inmem"
	"github.com/procyon-ai/procyon/pkg/examples"
	"github.com/procyon-ai/procyon/pkg/machine"
)

func newHelloWorld(t *testing.T) *agent.Agent {
	t.Helper()
	a, err := examples.NewHelloWorld("helloworld", nil)
	require.NoError(t, err)
	return a
}

func newParamTester(t *testing.T) *agent.Agent {
	t.Helper()
	a, err := examples.NewParamTester("paramtester", nil)
	require.NoError(t, err)
	return a
}

// newStepAgent builds an agent with a named intermediate state: start moves
// the process to "ready", step terminates it.
func newStepAgent(t *testing.T) *agent.Agent {
	t.Helper()
	a := agent.New("stepper")
	require.NoError(t, a.AddHandler(agent.Handler{
		Name: "start",
		Fn: func(_ context.Context, _ agent.ProcessContext, _ map[string]any) (any, error) {
			return agent.State{Name: "ready", Data: map[string]any{"steps": 0}}, nil
		},
	}))
	require.NoError(t, a.AddHandler(agent.Handler{
		Name:          "step",
		AllowedStates: []string{"ready"},
		Fn: func(_ context.Context, _ agent.ProcessContext, _ map[string]any) (any, error) {
			return map[string]any{"steps": 1}, nil
		},
	}))
	return a
}

func newTestRouter(t *testing.T, agents ...*agent.Agent) (chi.Router, *inmem.Store) {
	t.Helper()
	store := inmem.New()
	m := machine.New(store)
	for _, a := range agents {
		require.NoError(t, m.AddAgent(a))
	}
	r := chi.NewRouter()
	m.Routes(r)
	return r, store
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec, decoded
}

func TestHappyPath(t *testing.T) {
	router, store := newTestRouter(t, newHelloWorld(t))

	rec, body := doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle",
		map[string]any{"question": "hello"}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "terminated", body["state"])
	assert.Equal(t, map[string]any{"question": "hello", "answer": "world"}, body["data"])
	assert.NotEmpty(t, body["process_id"])
	assert.Equal(t, []any{}, body["available_actions"])

	events := store.Events("processes")
	require.Len(t, events, 2)
	assert.Equal(t, "processing", events[0].State)
	assert.Equal(t, "terminated", events[1].State)
	assert.Less(t, events[0].Date, events[1].Date)
}

func TestProcessingEventRecordsActionAndBody(t *testing.T) {
	router, store := newTestRouter(t, newHelloWorld(t))

	doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle",
		map[string]any{"question": "hello"}, nil)

	events := store.Events("processes")
	require.NotEmpty(t, events)
	data, ok := events[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "idle", data["action"])
	assert.Equal(t, map[string]any{"question": "hello"}, data["body"])
}

func TestAsyncMode(t *testing.T) {
	router, _ := newTestRouter(t, newHelloWorld(t))

	rec, body := doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle",
		map[string]any{"question": "hello"},
		map[string]string{"execution-mode": "async"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	pid, _ := body["process_id"].(string)
	require.NotEmpty(t, pid)
	require.Len(t, body, 1)

	statusPath := "/agents/helloworld/processes/" + pid + "/status"
	require.Eventually(t, func() bool {
		rec, body := doJSON(t, router, http.MethodGet, statusPath, nil, nil)
		return rec.Code == http.StatusOK && body["state"] == "terminated"
	}, 2*time.Second, 10*time.Millisecond)

	_, status := doJSON(t, router, http.MethodGet, statusPath, nil, nil)
	assert.Equal(t, map[string]any{"question": "hello", "answer": "world"}, status["data"])
	assert.Equal(t, pid, status["process_id"])
}

func TestAdvanceTerminatedProcessConflicts(t *testing.T) {
	router, _ := newTestRouter(t, newHelloWorld(t))

	_, body := doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle",
		map[string]any{"question": "hello"}, nil)
	pid := body["process_id"].(string)

	rec, conflict := doJSON(t, router, http.MethodPost,
		"/agents/helloworld/processes/"+pid+"/actions/idle",
		map[string]any{"question": "hello"}, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, `Action "idle" cannot process state "terminated"`, conflict["detail"])
}

func TestHandlerHTTPError(t *testing.T) {
	router, store := newTestRouter(t, newHelloWorld(t))

	rec, body := doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle",
		map[string]any{"question": "hola"}, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "huge system error handling unprecedented edge case", body["detail"])

	events := store.Events("processes")
	require.Len(t, events, 2)
	assert.Equal(t, "http_error", events[1].State)
	data := events[1].Data.(map[string]any)
	assert.Equal(t, "huge system error handling unprecedented edge case", data["detail"])
}

func TestDefaultsAndRequired(t *testing.T) {
	router, store := newTestRouter(t, newParamTester(t))

	rec, body := doJSON(t, router, http.MethodPost, "/agents/paramtester/programs/foo",
		map[string]any{"x": 1}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"x": float64(1), "y": float64(5), "z": float64(10)}, body["data"])

	before := len(store.Events("processes"))
	rec, body = doJSON(t, router, http.MethodPost, "/agents/paramtester/programs/foo",
		map[string]any{}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	details := body["detail"].([]any)
	require.Len(t, details, 1)
	first := details[0].(map[string]any)
	assert.Equal(t, []any{"body", "x"}, first["loc"])
	assert.Equal(t, "missing", first["type"])
	assert.Len(t, store.Events("processes"), before, "failed validation must not touch the log")

	rec, body = doJSON(t, router, http.MethodPost, "/agents/paramtester/programs/foo",
		map[string]any{"x": 1, "y": 2, "z": 3}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"x": float64(1), "y": float64(2), "z": float64(3)}, body["data"])
}

func TestUnknownFieldRejected(t *testing.T) {
	router, _ := newTestRouter(t, newParamTester(t))

	rec, body := doJSON(t, router, http.MethodPost, "/agents/paramtester/programs/foo",
		map[string]any{"x": 1, "nope": true}, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	details := body["detail"].([]any)
	require.Len(t, details, 1)
	assert.Equal(t, "extra_forbidden", details[0].(map[string]any)["type"])
}

func TestUnknownProcess(t *testing.T) {
	router, store := newTestRouter(t, newHelloWorld(t))

	rec, body := doJSON(t, router, http.MethodPost,
		"/agents/helloworld/processes/DEADBEEF/actions/idle",
		map[string]any{"question": "hello"}, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Process not found", body["detail"])
	assert.Empty(t, store.Events("processes"))
}

func TestStatusUnknownProcess(t *testing.T) {
	router, _ := newTestRouter(t, newHelloWorld(t))

	rec, body := doJSON(t, router, http.MethodGet,
		"/agents/helloworld/processes/DEADBEEF/status", nil, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Process not found", body["detail"])
}

func TestNamedTransitionAndAvailableActions(t *testing.T) {
	router, _ := newTestRouter(t, newStepAgent(t))

	rec, body := doJSON(t, router, http.MethodPost, "/agents/stepper/programs/start", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, []any{"step"}, body["available_actions"])
	pid := body["process_id"].(string)

	rec, body = doJSON(t, router, http.MethodPost,
		"/agents/stepper/processes/"+pid+"/actions/step", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "terminated", body["state"])
	assert.Equal(t, []any{}, body["available_actions"])
}

func TestStatusAfterHTTPErrorReplaysCode(t *testing.T) {
	router, _ := newTestRouter(t, newHelloWorld(t))

	rec, _ := doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle",
		map[string]any{"question": "hola"},
		map[string]string{"execution-mode": "async"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var pid string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &struct {
		ProcessID *string `json:"process_id"`
	}{&pid}))

	statusPath := "/agents/helloworld/processes/" + pid + "/status"
	require.Eventually(t, func() bool {
		rec, _ := doJSON(t, router, http.MethodGet, statusPath, nil, nil)
		return rec.Code == http.StatusInternalServerError
	}, 2*time.Second, 10*time.Millisecond)

	_, body := doJSON(t, router, http.MethodGet, statusPath, nil, nil)
	assert.Equal(t, "huge system error handling unprecedented edge case", body["detail"])
}

func TestUnhandledErrorSurfacesAs500(t *testing.T) {
	a := agent.New("broken")
	require.NoError(t, a.AddHandler(agent.Handler{
		Name: "boom",
		Fn: func(_ context.Context, _ agent.ProcessContext, _ map[string]any) (any, error) {
			return nil, fmt.Errorf("wires crossed")
		},
	}))
	router, store := newTestRouter(t, a)

	rec, body := doJSON(t, router, http.MethodPost, "/agents/broken/programs/boom", nil, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]any{"error": "wires crossed"}, body)

	events := store.Events("processes")
	require.Len(t, events, 2)
	assert.Equal(t, "unhandled_error", events[1].State)
}

func TestHandlerPanicBecomesUnhandledError(t *testing.T) {
	a := agent.New("panicky")
	require.NoError(t, a.AddHandler(agent.Handler{
		Name: "boom",
		Fn: func(_ context.Context, _ agent.ProcessContext, _ map[string]any) (any, error) {
			panic("oh no")
		},
	}))
	router, store := newTestRouter(t, a)

	rec, _ := doJSON(t, router, http.MethodPost, "/agents/panicky/programs/boom", nil, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	events := store.Events("processes")
	require.Len(t, events, 2)
	assert.Equal(t, "unhandled_error", events[1].State)
}

func TestSyncAsyncEquivalence(t *testing.T) {
	router, store := newTestRouter(t, newHelloWorld(t))
	input := map[string]any{"question": "hello"}

	_, syncBody := doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle", input, nil)
	syncPid := syncBody["process_id"].(string)

	rec, asyncBody := doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle", input,
		map[string]string{"execution-mode": "async"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	asyncPid := asyncBody["process_id"].(string)

	require.Eventually(t, func() bool {
		for _, e := range store.Events("processes") {
			if e.ProcessID == asyncPid && e.State != "processing" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	terminal := func(pid string) (state string, data any) {
		for _, e := range store.Events("processes") {
			if e.ProcessID == pid && e.State != "processing" {
				return e.State, e.Data
			}
		}
		return "", nil
	}

	syncState, syncData := terminal(syncPid)
	asyncState, asyncData := terminal(asyncPid)
	assert.Equal(t, syncState, asyncState)
	assert.Equal(t, syncData, asyncData)
}

func TestCallbackDelivery(t *testing.T) {
	received := make(chan map[string]any, 1)
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
	}))
	defer callback.Close()

	router, _ := newTestRouter(t, newHelloWorld(t))

	// A callback-url without execution-mode implies async.
	rec, body := doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle",
		map[string]any{"question": "hello"},
		map[string]string{"callback-url": callback.URL})
	require.Equal(t, http.StatusAccepted, rec.Code)
	pid := body["process_id"].(string)

	select {
	case payload := <-received:
		assert.Equal(t, pid, payload["process_id"])
		assert.Equal(t, "terminated", payload["state"])
		assert.Equal(t, map[string]any{"question": "hello", "answer": "world"}, payload["data"])
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not delivered")
	}
}

func TestExecutionModeHeaderPrecedence(t *testing.T) {
	router, _ := newTestRouter(t, newHelloWorld(t))

	// Explicit sync wins over the callback-url implication.
	rec, body := doJSON(t, router, http.MethodPost, "/agents/helloworld/programs/idle",
		map[string]any{"question": "hello"},
		map[string]string{"callback-url": "http://127.0.0.1:1", "execution-mode": "SYNC"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "terminated", body["state"])
}

func TestConcurrentAdvanceOnlyOneWins(t *testing.T) {
	router, _ := newTestRouter(t, newStepAgent(t))

	_, body := doJSON(t, router, http.MethodPost, "/agents/stepper/programs/start", nil, nil)
	pid := body["process_id"].(string)

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost,
				"/agents/stepper/processes/"+pid+"/actions/step", bytes.NewReader(nil))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok, "exactly one concurrent advance must pass the guard")
	assert.Equal(t, n-1, conflict)
}

func TestDuplicateAgentRejected(t *testing.T) {
	m := machine.New(inmem.New())
	require.NoError(t, m.AddAgent(newHelloWorld(t)))
	assert.Error(t, m.AddAgent(newHelloWorld(t)))
}

func TestAgentWithoutInitializerRejected(t *testing.T) {
	a := agent.New("orphan")
	require.NoError(t, a.AddHandler(agent.Handler{
		Name:          "step",
		AllowedStates: []string{"ready"},
		Fn: func(_ context.Context, _ agent.ProcessContext, _ map[string]any) (any, error) {
			return nil, nil
		},
	}))
	m := machine.New(inmem.New())
	assert.Error(t, m.AddAgent(a))
}
