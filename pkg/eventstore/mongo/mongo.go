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

// Package mongo implements eventstore.Store on a MongoDB database.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/procyon-ai/procyon/pkg/eventstore"
)

const defaultTimeout = 5 * time.Second

// Options configures the Mongo event store.
type Options struct {
	URI      string
	Database string

	// Timeout bounds each store operation. Defaults to 5s.
	Timeout time.Duration
}

// Store implements eventstore.Store on MongoDB.
type Store struct {
	client  *mongodriver.Client
	db      *mongodriver.Database
	timeout time.Duration
}

type eventDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ProcessID string             `bson:"process_id"`
	State     string             `bson:"state"`
	Data      any                `bson:"data"`
	Date      string             `bson:"date"`
}

// New connects to MongoDB and returns a store bound to the database.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo URI is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &Store{
		client:  client,
		db:      client.Database(opts.Database),
		timeout: timeout,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "process_id", Value: 1},
			{Key: "date", Value: 1},
		},
	}
	_, err := s.db.Collection(eventstore.Collection).Indexes().CreateOne(ctx, index)
	return err
}

// Insert implements eventstore.Store.
func (s *Store) Insert(ctx context.Context, collection string, e *eventstore.Event) error {
	if e.ProcessID == "" {
		return eventstore.ErrMissingProcessID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := eventDocument{
		ProcessID: e.ProcessID,
		State:     e.State,
		Data:      e.Data,
		Date:      e.Date,
	}
	res, err := s.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	e.ID = oid.Hex()
	return nil
}

// Find implements eventstore.Store. The caller's context governs the cursor;
// a per-call timeout here would tear it down before iteration.
func (s *Store) Find(ctx context.Context, collection string, filter map[string]any) (eventstore.Iterator, error) {
	q := bson.M{}
	for field, v := range filter {
		q[field] = v
	}
	cur, err := s.db.Collection(collection).Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return &iterator{cur: cur}, nil
}

type iterator struct {
	cur     *mongodriver.Cursor
	current *eventstore.Event
	err     error
}

func (it *iterator) Next(ctx context.Context) bool {
	if !it.cur.Next(ctx) {
		return false
	}
	var doc eventDocument
	if err := it.cur.Decode(&doc); err != nil {
		it.err = err
		return false
	}
	it.current = &eventstore.Event{
		ID:        doc.ID.Hex(),
		ProcessID: doc.ProcessID,
		State:     doc.State,
		Data:      normalize(doc.Data),
		Date:      doc.Date,
	}
	return true
}

func (it *iterator) Event() *eventstore.Event { return it.current }

func (it *iterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.cur.Err()
}

func (it *iterator) Close(ctx context.Context) error {
	return it.cur.Close(ctx)
}

// normalize converts bson document types back into plain maps and slices so
// that consumers see the same shapes the in-memory store produces.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int32:
		return int64(t)
	default:
		return v
	}
}
