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

// Package examples ships reference agent implementations used by the
// bundled resource examples and the end-to-end tests.
package examples

import (
	"context"
	"net/http"

	"github.com/procyon-ai/procyon/pkg/agent"
	"github.com/procyon-ai/procyon/pkg/schema"
)

// HelloWorld is the implementation identifier of the hello world agent.
const HelloWorld = "procyon.examples.HelloWorld"

func init() {
	agent.RegisterImplementation(HelloWorld, NewHelloWorld)
}

// NewHelloWorld builds an agent with a single initializer action `idle` that
// answers "world" to the question "hello" and fails loudly on anything else.
func NewHelloWorld(name string, _ map[string]any) (*agent.Agent, error) {
	a := agent.New(name)
	a.Description = "Answers the one question it knows the answer to."

	err := a.AddHandler(agent.Handler{
		Name:          "idle",
		Description:   "Start a conversation with a question.",
		TransitionsTo: []string{agent.StateTerminated},
		Params: []schema.Param{
			{Name: "question", Type: schema.TypeString, Description: "The question to ask."},
		},
		Fn: func(_ context.Context, _ agent.ProcessContext, input map[string]any) (any, error) {
			question, _ := input["question"].(string)
			if question != "hello" {
				return nil, agent.NewHTTPError(http.StatusInternalServerError,
					"huge system error handling unprecedented edge case")
			}
			return map[string]any{
				"question": question,
				"answer":   "world",
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
