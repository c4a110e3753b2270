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

// Package eventstore defines the append-only process event log.
//
// The store is a document collection: events are inserted, never updated or
// deleted. The effective state of a process is the event with the greatest
// date. Find returns events in unspecified order; consumers sort by date.
package eventstore

import (
	"context"
	"errors"
)

// Collection is the collection process events are appended to.
const Collection = "processes"

// Event is one immutable state observation for a process.
type Event struct {
	// ID is the store-assigned internal id; opaque to consumers.
	ID string `bson:"-" json:"-"`

	ProcessID string `bson:"process_id" json:"process_id"`
	State     string `bson:"state" json:"state"`

	// Data is the per-state payload; its shape is defined by the state.
	Data any `bson:"data" json:"data"`

	// Date is an ISO-8601 UTC timestamp with sub-second resolution, used as
	// the sort key. Lexicographic order equals chronological order.
	Date string `bson:"date" json:"date"`
}

// Store is an append-only document store for process events.
type Store interface {
	// Insert appends an event to the collection and assigns its internal id.
	Insert(ctx context.Context, collection string, e *Event) error

	// Find streams the events whose fields equal the filter's fields.
	// Ordering is unspecified.
	Find(ctx context.Context, collection string, filter map[string]any) (Iterator, error)
}

// Iterator streams events from a Find call.
type Iterator interface {
	// Next advances to the next event, reporting whether one is available.
	Next(ctx context.Context) bool

	// Event returns the current event. Valid only after Next returned true.
	Event() *Event

	// Err returns the first error encountered while iterating.
	Err() error

	// Close releases resources held by the iterator.
	Close(ctx context.Context) error
}

// ErrMissingProcessID is returned when an event has no process id.
var ErrMissingProcessID = errors.New("process_id is required")
