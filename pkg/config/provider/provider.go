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

// Package provider defines the resource source abstraction.
//
// Providers load raw resource documents from a source and support watching
// for changes.
package provider

import (
	"context"
	"fmt"
	"os"
)

// Type identifies the resource source type.
type Type string

const (
	TypeFile Type = "file"
	TypeDir  Type = "dir"
)

// Provider abstracts resource sources.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Type returns the provider type for logging/debugging.
	Type() Type

	// Load reads the raw resource documents as one multi-document YAML stream.
	Load(ctx context.Context) ([]byte, error)

	// Watch starts watching for changes and signals via the returned channel.
	// Cancel the context to stop watching.
	// Returns a nil channel if watching is not supported.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases any resources held by the provider.
	Close() error
}

// New creates a Provider for the given path. Directories get a DirProvider,
// regular files a FileProvider.
func New(path string) (Provider, error) {
	if path == "" {
		return nil, fmt.Errorf("resource path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return NewDirProvider(path)
	}
	return NewFileProvider(path)
}
