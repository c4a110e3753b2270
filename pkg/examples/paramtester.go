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

package examples

import (
	"context"

	"github.com/procyon-ai/procyon/pkg/agent"
	"github.com/procyon-ai/procyon/pkg/schema"
)

// ParamTester is the implementation identifier of the parameter echo agent.
const ParamTester = "procyon.examples.ParamTester"

func init() {
	agent.RegisterImplementation(ParamTester, NewParamTester)
}

// NewParamTester builds an agent whose initializer `foo` echoes its
// parameters back, exercising required fields and defaults.
func NewParamTester(name string, _ map[string]any) (*agent.Agent, error) {
	a := agent.New(name)
	a.Description = "Echoes its parameters; exercises defaults and required fields."

	err := a.AddHandler(agent.Handler{
		Name:          "foo",
		TransitionsTo: []string{agent.StateTerminated},
		Params: []schema.Param{
			{Name: "x", Type: schema.TypeInteger},
			{Name: "y", Type: schema.TypeInteger, Default: 5},
			{Name: "z", Type: schema.TypeInteger, Default: 10, Description: "z is a param"},
		},
		Fn: func(_ context.Context, _ agent.ProcessContext, input map[string]any) (any, error) {
			return map[string]any{
				"x": input["x"],
				"y": input["y"],
				"z": input["z"],
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
