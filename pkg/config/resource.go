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

// Package config defines the machine's declarative resource model.
//
// A deployment is described by YAML resource documents. Each document has a
// kind (Agent or Machine), a name, and a kind-specific spec. Agent resources
// bind a name to a registered implementation; the Machine resource selects
// the event store and file memory backends.
package config

import (
	"fmt"
	"time"
)

// Kind identifies the resource document type.
type Kind string

const (
	KindAgent   Kind = "Agent"
	KindMachine Kind = "Machine"
)

// Resource is one YAML resource document.
type Resource struct {
	Kind        Kind   `yaml:"kind"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Implementation names the registered agent implementation. Agent
	// resources only.
	Implementation string `yaml:"implementation,omitempty"`

	// Spec is the kind-specific configuration, passed through to the
	// implementation (Agent) or decoded into MachineSpec (Machine).
	Spec map[string]any `yaml:"spec,omitempty"`
}

// EventStoreSpec selects and configures the event store backend.
type EventStoreSpec struct {
	// Backend is "inmem" or "mongo".
	Backend string `yaml:"backend"`

	// URI and Database configure the mongo backend.
	URI      string        `yaml:"uri,omitempty"`
	Database string        `yaml:"database,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// FileMemorySpec selects and configures the file memory backend.
type FileMemorySpec struct {
	// Backend is "local" or "s3".
	Backend string `yaml:"backend"`

	// Root is the local backend's directory.
	Root string `yaml:"root,omitempty"`

	// Bucket and Region configure the s3 backend.
	Bucket       string `yaml:"bucket,omitempty"`
	Region       string `yaml:"region,omitempty"`
	CreateBucket bool   `yaml:"create_bucket_on_startup,omitempty"`
}

// MachineSpec is the Machine resource's spec.
type MachineSpec struct {
	EventStore EventStoreSpec `yaml:"event_store"`
	FileMemory FileMemorySpec `yaml:"file_memory"`
}

// Config is the fully loaded deployment: one machine plus its agents.
type Config struct {
	Machine MachineSpec
	Agents  []Resource
}

// SetDefaults fills in unset backend selections.
func (c *Config) SetDefaults() {
	if c.Machine.EventStore.Backend == "" {
		c.Machine.EventStore.Backend = "inmem"
	}
	if c.Machine.EventStore.Database == "" {
		c.Machine.EventStore.Database = "procyon"
	}
	if c.Machine.FileMemory.Backend == "" {
		c.Machine.FileMemory.Backend = "local"
	}
	if c.Machine.FileMemory.Root == "" {
		c.Machine.FileMemory.Root = ".procyon/files"
	}
}

// Validate checks the loaded configuration for structural errors.
func (c *Config) Validate() error {
	switch c.Machine.EventStore.Backend {
	case "inmem":
	case "mongo":
		if c.Machine.EventStore.URI == "" {
			return fmt.Errorf("event_store: uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("event_store: unknown backend %q", c.Machine.EventStore.Backend)
	}

	switch c.Machine.FileMemory.Backend {
	case "local":
	case "s3":
		if c.Machine.FileMemory.Bucket == "" {
			return fmt.Errorf("file_memory: bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("file_memory: unknown backend %q", c.Machine.FileMemory.Backend)
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one Agent resource is required")
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent resource is missing a name")
		}
		if a.Implementation == "" {
			return fmt.Errorf("agent %q is missing an implementation", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}
