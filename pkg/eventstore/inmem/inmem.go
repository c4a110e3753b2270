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

// Package inmem provides an in-memory implementation of eventstore.Store.
//
// The in-memory store is intended for tests and local development. It is not
// durable and should not be used in production.
package inmem

import (
	"context"
	"strconv"
	"sync"

	"github.com/procyon-ai/procyon/pkg/eventstore"
)

// Store implements eventstore.Store in memory.
type Store struct {
	mu      sync.Mutex
	nextSeq int64
	// per-collection insertion-ordered events.
	collections map[string][]*eventstore.Event
}

// New returns a new in-memory event store.
func New() *Store {
	return &Store{
		collections: make(map[string][]*eventstore.Event),
	}
}

// Insert implements eventstore.Store.
func (s *Store) Insert(_ context.Context, collection string, e *eventstore.Event) error {
	if e.ProcessID == "" {
		return eventstore.ErrMissingProcessID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	e.ID = strconv.FormatInt(s.nextSeq, 10)
	ev := *e
	s.collections[collection] = append(s.collections[collection], &ev)
	return nil
}

// Find implements eventstore.Store. The iterator walks a snapshot taken at
// call time; concurrent inserts do not affect an open iterator.
func (s *Store) Find(_ context.Context, collection string, filter map[string]any) (eventstore.Iterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*eventstore.Event
	for _, e := range s.collections[collection] {
		if matches(e, filter) {
			ev := *e
			matched = append(matched, &ev)
		}
	}
	return &iterator{events: matched, pos: -1}, nil
}

// Events returns a copy of every event in the collection, in insertion
// order. Test helper.
func (s *Store) Events(collection string) []*eventstore.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*eventstore.Event, 0, len(s.collections[collection]))
	for _, e := range s.collections[collection] {
		ev := *e
		out = append(out, &ev)
	}
	return out
}

func matches(e *eventstore.Event, filter map[string]any) bool {
	for field, want := range filter {
		var got any
		switch field {
		case "process_id":
			got = e.ProcessID
		case "state":
			got = e.State
		case "date":
			got = e.Date
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

type iterator struct {
	events []*eventstore.Event
	pos    int
}

func (it *iterator) Next(_ context.Context) bool {
	if it.pos+1 >= len(it.events) {
		return false
	}
	it.pos++
	return true
}

func (it *iterator) Event() *eventstore.Event {
	return it.events[it.pos]
}

func (it *iterator) Err() error { return nil }

func (it *iterator) Close(_ context.Context) error { return nil }
