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

// Package server exposes an agent machine over HTTP: the agent routes plus
// the operational endpoints (health, metrics, discovery, docs, OpenAPI).
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/procyon-ai/procyon/pkg/machine"
)

//go:embed static/docs.html
var docsHTML []byte

// Options configures the HTTP server.
type Options struct {
	Host string
	Port int

	// Version is reported in the OpenAPI document.
	Version string
}

// Server hosts an agent machine. The router is swappable so resource
// reloads can replace the hosted agents without dropping the listener.
type Server struct {
	opts       Options
	router     atomic.Pointer[chi.Mux]
	httpServer *http.Server
}

// New builds the server and its router for the given machine.
func New(m *machine.Machine, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{opts: opts}
	s.router.Store(buildRouter(m, opts))
	return s
}

// Reload replaces the hosted machine. In-flight requests finish against the
// old router; new requests see the new one.
func (s *Server) Reload(m *machine.Machine) {
	s.router.Store(buildRouter(m, s.opts))
	slog.Info("Server routes reloaded", "agents", len(m.Agents()))
}

func buildRouter(m *machine.Machine, opts Options) *chi.Mux {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/agents", discoveryHandler(m))

	openapi := buildOpenAPI(m, opts.Version)
	r.Get("/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openapi)
	})
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(docsHTML)
	})

	m.Routes(r)

	return r
}

// Router returns the current router; used by tests to serve requests
// without a listener.
func (s *Server) Router() chi.Router {
	return s.router.Load()
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	s.httpServer = &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.router.Load().ServeHTTP(w, r)
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return <-errCh
}

// discoveryHandler lists the hosted agents and their actions.
func discoveryHandler(m *machine.Machine) http.HandlerFunc {
	type actionInfo struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Path        string `json:"path"`
		Initializer bool   `json:"initializer"`
	}
	type agentInfo struct {
		Name        string       `json:"name"`
		Description string       `json:"description,omitempty"`
		Actions     []actionInfo `json:"actions"`
	}

	var agents []agentInfo
	for _, a := range m.Agents() {
		info := agentInfo{
			Name:        a.Name,
			Description: a.Description,
			Actions:     []actionInfo{},
		}
		for _, h := range a.Handlers() {
			path := fmt.Sprintf("/agents/%s/processes/{process_id}/actions/%s", a.Name, h.Name)
			if h.IsInitializer() {
				path = fmt.Sprintf("/agents/%s/programs/%s", a.Name, h.Name)
			}
			info.Actions = append(info.Actions, actionInfo{
				Name:        h.Name,
				Description: h.Description,
				Path:        path,
				Initializer: h.IsInitializer(),
			})
		}
		agents = append(agents, info)
	}
	if agents == nil {
		agents = []agentInfo{}
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"agents": agents})
	}
}
