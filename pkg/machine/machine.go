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

// Package machine hosts agents behind an HTTP surface.
//
// A Machine owns the agent registry, the process event store, and the file
// memory. Per agent action it mounts a route whose handler performs the
// full request cycle: validate, resolve process, guard the transition,
// append the processing event, run the handler, and append the terminal
// event. Process status is always a reduction over the event log.
package machine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/procyon-ai/procyon/pkg/agent"
	"github.com/procyon-ai/procyon/pkg/config"
	"github.com/procyon-ai/procyon/pkg/eventstore"
	"github.com/procyon-ai/procyon/pkg/eventstore/inmem"
	eventmongo "github.com/procyon-ai/procyon/pkg/eventstore/mongo"
	"github.com/procyon-ai/procyon/pkg/filememory"
	filelocal "github.com/procyon-ai/procyon/pkg/filememory/local"
	files3 "github.com/procyon-ai/procyon/pkg/filememory/s3"
)

// Machine is an immutable-after-start set of agents bound to an event store
// and an optional file memory.
type Machine struct {
	store eventstore.Store
	files filememory.Memory

	agents map[string]*agent.Agent
	order  []string

	locks      *keyedLocks
	clock      *eventClock
	httpClient *http.Client
}

// New creates a machine over the given event store.
func New(store eventstore.Store) *Machine {
	return &Machine{
		store:      store,
		agents:     make(map[string]*agent.Agent),
		locks:      newKeyedLocks(),
		clock:      &eventClock{},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewFromConfig builds a machine from loaded resources: the configured
// event store and file memory backends, plus one agent per Agent resource,
// resolved through the implementation registry.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Machine, error) {
	store, err := buildStore(ctx, cfg.Machine.EventStore)
	if err != nil {
		return nil, err
	}

	m := New(store)

	m.files, err = buildFileMemory(ctx, cfg.Machine.FileMemory)
	if err != nil {
		return nil, err
	}
	if err := m.files.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start file memory: %w", err)
	}

	for _, res := range cfg.Agents {
		factory, err := agent.ResolveImplementation(res.Implementation)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", res.Name, err)
		}
		a, err := factory(res.Name, res.Spec)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", res.Name, err)
		}
		if a.Description == "" {
			a.Description = res.Description
		}
		a.Files = m.files
		if err := m.AddAgent(a); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func buildStore(ctx context.Context, spec config.EventStoreSpec) (eventstore.Store, error) {
	switch spec.Backend {
	case "mongo":
		store, err := eventmongo.New(ctx, eventmongo.Options{
			URI:      spec.URI,
			Database: spec.Database,
			Timeout:  spec.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build mongo event store: %w", err)
		}
		return store, nil
	case "inmem", "":
		return inmem.New(), nil
	default:
		return nil, fmt.Errorf("unknown event store backend %q", spec.Backend)
	}
}

func buildFileMemory(ctx context.Context, spec config.FileMemorySpec) (filememory.Memory, error) {
	switch spec.Backend {
	case "s3":
		mem, err := files3.New(ctx, files3.Options{
			Bucket:                spec.Bucket,
			Region:                spec.Region,
			CreateBucketOnStartup: spec.CreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build s3 file memory: %w", err)
		}
		return mem, nil
	case "local", "":
		return filelocal.New(spec.Root)
	default:
		return nil, fmt.Errorf("unknown file memory backend %q", spec.Backend)
	}
}

// AddAgent registers an agent, validating its state machine.
func (m *Machine) AddAgent(a *agent.Agent) error {
	if _, exists := m.agents[a.Name]; exists {
		return fmt.Errorf("duplicate agent %q", a.Name)
	}
	if err := a.Validate(); err != nil {
		return err
	}
	m.agents[a.Name] = a
	m.order = append(m.order, a.Name)
	return nil
}

// Agent returns the named agent.
func (m *Machine) Agent(name string) (*agent.Agent, bool) {
	a, ok := m.agents[name]
	return a, ok
}

// Agents returns the agents in registration order.
func (m *Machine) Agents() []*agent.Agent {
	out := make([]*agent.Agent, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.agents[name])
	}
	return out
}

// Store returns the machine's event store.
func (m *Machine) Store() eventstore.Store {
	return m.store
}

// Files returns the machine's file memory; nil when none is configured.
func (m *Machine) Files() filememory.Memory {
	return m.files
}

// Routes mounts every agent's action and status routes on r. Initializer
// actions mount under /programs and are additionally reachable under
// /processes/{process_id}/actions, where the guard rejects them for any
// existing process. Initializers are mounted before non-initializers, so
// the published contract order is deterministic.
func (m *Machine) Routes(r chi.Router) {
	for _, a := range m.Agents() {
		r.Route("/agents/"+a.Name, func(r chi.Router) {
			for _, h := range a.Handlers() {
				if h.IsInitializer() {
					r.Post("/programs/"+h.Name, m.handleAction(a, h, true))
				}
				r.Post("/processes/{process_id}/actions/"+h.Name, m.handleAction(a, h, false))
			}
			r.Get("/processes/{process_id}/status", m.handleStatus(a))
		})
	}
}
