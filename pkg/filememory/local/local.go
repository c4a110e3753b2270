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

// Package local implements filememory.Memory on a local directory tree.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/procyon-ai/procyon/pkg/filememory"
)

// Memory stores blobs as files under a root directory.
type Memory struct {
	root string
}

// New creates a local file memory rooted at dir.
func New(dir string) (*Memory, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	return &Memory{root: abs}, nil
}

// Start creates the root directory.
func (m *Memory) Start(_ context.Context) error {
	return os.MkdirAll(m.root, 0755)
}

// resolve maps a memory path onto the root, rejecting escapes.
func (m *Memory) resolve(p string) (string, error) {
	clean := filepath.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("invalid path %q", p)
	}
	return filepath.Join(m.root, clean), nil
}

// Read implements filememory.Memory.
func (m *Memory) Read(_ context.Context, p string) ([]byte, error) {
	full, err := m.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, filememory.ErrNotFound
	}
	return data, err
}

// Write implements filememory.Memory.
func (m *Memory) Write(_ context.Context, p string, contents []byte) error {
	full, err := m.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	return os.WriteFile(full, contents, 0644)
}

// Delete implements filememory.Memory.
func (m *Memory) Delete(_ context.Context, p string) error {
	full, err := m.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists implements filememory.Memory.
func (m *Memory) Exists(_ context.Context, p string) (bool, error) {
	full, err := m.resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

// Glob implements filememory.Memory.
func (m *Memory) Glob(_ context.Context, pattern string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(m.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(m.root, p)
		if err != nil {
			return err
		}
		rel = strings.ReplaceAll(rel, string(filepath.Separator), "/")
		ok, err := path.Match(pattern, rel)
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return matches, err
}
