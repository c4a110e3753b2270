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

// Command procyon hosts declarative agents behind an HTTP API.
//
// Usage:
//
//	procyon serve resources/
//	procyon serve --port 9000 --reload resources/
//	procyon validate resources/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/procyon-ai/procyon/pkg/agent"
	"github.com/procyon-ai/procyon/pkg/config"
	"github.com/procyon-ai/procyon/pkg/config/provider"
	"github.com/procyon-ai/procyon/pkg/logger"
	"github.com/procyon-ai/procyon/pkg/machine"
	"github.com/procyon-ai/procyon/pkg/server"

	// Bundled reference agents register their implementations at init time.
	_ "github.com/procyon-ai/procyon/pkg/examples"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the agent machine."`
	Validate ValidateCmd `cmd:"" help:"Validate resource documents."`

	Debug     bool   `help:"Shortcut for --log-level=debug."`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("procyon version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

// ServeCmd starts the agent machine.
type ServeCmd struct {
	Resources string `arg:"" help:"Path to a resource directory or file." type:"path"`

	Host   string `help:"Host to bind." default:""`
	Port   int    `help:"Port to listen on." default:"8080"`
	Reload bool   `help:"Watch the resource path and reload on changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	p, err := provider.New(c.Resources)
	if err != nil {
		return err
	}

	var srv *server.Server
	loader := config.NewLoader(p, config.WithOnChange(func(cfg *config.Config) {
		nm, err := machine.NewFromConfig(ctx, cfg)
		if err != nil {
			slog.Error("Failed to rebuild machine from reloaded resources", "error", err)
			return
		}
		srv.Reload(nm)
	}))
	defer loader.Close()

	cfg, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	m, err := machine.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build machine: %w", err)
	}

	srv = server.New(m, server.Options{
		Host:    c.Host,
		Port:    c.Port,
		Version: version(),
	})

	fmt.Printf("Procyon agent machine ready on port %d\n", c.Port)
	fmt.Printf("   Docs:      /docs\n")
	fmt.Printf("   Discovery: /agents\n")
	fmt.Printf("   Health:    /health\n")
	fmt.Println("\n   Agents:")
	for _, a := range m.Agents() {
		fmt.Printf("     - /agents/%s\n", a.Name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Reload {
		g.Go(func() error {
			err := loader.Watch(gctx)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// ValidateCmd loads and validates resources without serving.
type ValidateCmd struct {
	Resources string `arg:"" help:"Path to a resource directory or file." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, loader, err := config.Load(ctx, c.Resources)
	if err != nil {
		return err
	}
	defer loader.Close()

	// Build agents without touching the configured backends, so validate
	// works offline.
	for _, res := range cfg.Agents {
		factory, err := agent.ResolveImplementation(res.Implementation)
		if err != nil {
			return fmt.Errorf("agent %q: %w", res.Name, err)
		}
		a, err := factory(res.Name, res.Spec)
		if err != nil {
			return fmt.Errorf("agent %q: %w", res.Name, err)
		}
		if err := a.Validate(); err != nil {
			return err
		}
	}

	fmt.Printf("Resources valid: %d agent(s), event store %q, file memory %q\n",
		len(cfg.Agents), cfg.Machine.EventStore.Backend, cfg.Machine.FileMemory.Backend)
	for _, a := range cfg.Agents {
		fmt.Printf("  - %s (%s)\n", a.Name, a.Implementation)
	}
	return nil
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("procyon"),
		kong.Description("Procyon - declarative agent machine"),
		kong.UsageOnError(),
	)

	levelStr := cli.LogLevel
	if cli.Debug {
		levelStr = "debug"
	}
	level, _ := logger.ParseLevel(levelStr)

	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
