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

package provider

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DirProvider loads every *.yaml / *.yml file in a directory as one
// multi-document stream and watches the directory for changes.
type DirProvider struct {
	dir string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewDirProvider creates a provider that reads from a local directory.
func NewDirProvider(dir string) (*DirProvider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	return &DirProvider{dir: abs}, nil
}

// Type returns TypeDir.
func (p *DirProvider) Type() Type {
	return TypeDir
}

func isResourceFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads the directory's resource files in lexical order and joins them
// with document separators, so downstream parsing sees one YAML stream.
func (p *DirProvider) Load(ctx context.Context) ([]byte, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource directory %s: %w", p.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isResourceFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no resource files (*.yaml, *.yml) in %s", p.dir)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(p.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read resource file %s: %w", name, err)
		}
		if buf.Len() > 0 {
			buf.WriteString("\n---\n")
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// Watch starts watching the directory for resource file changes.
func (p *DirProvider) Watch(ctx context.Context) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("provider is closed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	p.watcher = watcher

	if err := watcher.Add(p.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", p.dir, err)
	}

	ch := make(chan struct{}, 1)
	go watchLoop(ctx, watcher, ch, func(name string) bool {
		return isResourceFile(name)
	})

	slog.Info("Watching resource directory", "dir", p.dir)
	return ch, nil
}

// Close stops watching and releases resources.
func (p *DirProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.watcher != nil {
		err := p.watcher.Close()
		p.watcher = nil
		return err
	}
	return nil
}

var _ Provider = (*DirProvider)(nil)
