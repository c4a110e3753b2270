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

package agent

import (
	"fmt"

	"github.com/procyon-ai/procyon/pkg/registry"
)

// Factory builds an agent instance from its declarative resource
// configuration. The spec map is the resource's free-form `spec` block.
type Factory func(name string, spec map[string]any) (*Agent, error)

// implementations maps fully-qualified implementation identifiers, as
// referenced by agent resource documents, to factories. Implementations
// register themselves at init time; the host resolves them at startup.
var implementations = registry.NewBaseRegistry[Factory]()

// RegisterImplementation makes a factory resolvable under the given
// identifier. Panics on duplicates: registration happens at init time and a
// duplicate is a programming error.
func RegisterImplementation(identifier string, f Factory) {
	if err := implementations.Register(identifier, f); err != nil {
		panic(fmt.Sprintf("agent: %v", err))
	}
}

// ResolveImplementation returns the factory registered under identifier.
func ResolveImplementation(identifier string) (Factory, error) {
	f, ok := implementations.Get(identifier)
	if !ok {
		return nil, fmt.Errorf("unknown agent implementation %q (registered: %v)", identifier, implementations.Names())
	}
	return f, nil
}
