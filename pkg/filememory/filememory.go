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

// Package filememory defines the blob-style file memory shared by agents.
package filememory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a path has no stored content.
var ErrNotFound = errors.New("file not found")

// Memory stores opaque blobs under slash-separated paths. Implementations
// must be safe for concurrent use.
type Memory interface {
	// Start prepares the backend (creates directories or buckets).
	Start(ctx context.Context) error

	// Read returns the contents stored at path, or ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write stores contents at path, replacing any previous value.
	Write(ctx context.Context, path string, contents []byte) error

	// Delete removes the blob at path. Deleting a missing path is not an
	// error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether path has stored content.
	Exists(ctx context.Context, path string) (bool, error)

	// Glob returns the stored paths matching the shell pattern.
	Glob(ctx context.Context, pattern string) ([]string, error)
}
