// Command forge is the CLI entrypoint: it loads a config file, wires a
// Runtime, starts the orchestrator, and blocks until an interrupt signal
// drains it. Argument parsing beyond a config path is out of scope
// (spec.md §1 Non-goals); forge leaves the rest of the CLI — prompt
// loop, LLM transport choice, terminal rendering — to the host that
// embeds this package.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/forge/pkg/config"
	"github.com/kadirpekel/forge/pkg/logger"
	"github.com/kadirpekel/forge/pkg/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "forge:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "forge.yaml", "path to forge's YAML config file")
	allowedBase := flag.String("allowed-base", ".", "allowed base directory when no config file exists")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *allowedBase)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rt, err := runtime.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("building runtime: %w", err)
	}
	rt.Start()

	log := logger.Default()
	log.Info("forge runtime started",
		slog.Int("concurrency", cfg.Orchestrator.Concurrency),
		slog.Int("tools", len(rt.Registry.List())))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	log.Info("forge runtime shutting down")
	rt.Stop()
	return nil
}

// loadConfig loads from path if it exists, otherwise falls back to a
// single-allowed-base default config — the zero-config path a fresh
// checkout should just work with.
func loadConfig(path, allowedBase string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return config.Default(allowedBase), nil
	}

	provider, err := config.NewFileProvider(path)
	if err != nil {
		return nil, err
	}
	loader := config.NewLoader(provider)
	return loader.Load(context.Background())
}
