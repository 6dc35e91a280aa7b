// Package runtime wires forge's six core components plus the two
// supporting pieces into one composable unit from a loaded Config, the
// same composition role hector's pkg/runtime.Runtime plays relative to
// its config and llm/tool factories — narrowed here to forge's scope:
// no agents, no sessions, no RAG document stores, just the
// Registry → Sanitizer/PathValidator → ProcessManager → Orchestrator →
// Pipeline → Recovery chain spec.md describes.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/forge/pkg/classifier"
	"github.com/kadirpekel/forge/pkg/config"
	forgecontext "github.com/kadirpekel/forge/pkg/context"
	"github.com/kadirpekel/forge/pkg/llm"
	"github.com/kadirpekel/forge/pkg/logger"
	"github.com/kadirpekel/forge/pkg/orchestrator"
	"github.com/kadirpekel/forge/pkg/pipeline"
	"github.com/kadirpekel/forge/pkg/process"
	"github.com/kadirpekel/forge/pkg/recovery"
	"github.com/kadirpekel/forge/pkg/safety"
	"github.com/kadirpekel/forge/pkg/tool"
	"github.com/kadirpekel/forge/pkg/tools"
)

// Runtime bundles every core component built from one Config. Build with
// New, call Start before submitting work, Stop to drain and tear down.
type Runtime struct {
	Config           *config.Config
	Registry         *tool.Registry
	Sanitizer        *safety.Sanitizer
	PathValidator    *safety.PathValidator
	Processes        *process.Manager
	Orchestrator     *orchestrator.Orchestrator
	Pipeline         *pipeline.Pipeline
	Recovery         *recovery.Module
	ContextAssembler *forgecontext.Assembler

	log *slog.Logger
}

// New builds a Runtime from a validated Config. llmClient is optional: a
// nil client disables recovery's LLM consultation and falls back to the
// static heuristic table for every failure (spec.md §6 step 2).
func New(cfg *config.Config, llmClient llm.Client) (*Runtime, error) {
	level, err := logger.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("runtime: parsing log level: %w", err)
	}
	logger.Init(level, nil)
	log := logger.Default()

	pathValidator := safety.NewPathValidator(cfg.Safety.AllowedBasePaths, cfg.Safety.ForbiddenPatterns)
	sanitizer := safety.NewSanitizer()
	processes := process.NewManager()

	registry := tool.NewRegistry()
	if err := registerBuiltinTools(registry, pathValidator, sanitizer, processes); err != nil {
		return nil, fmt.Errorf("runtime: registering built-in tools: %w", err)
	}

	orch := orchestrator.New(registry, cfg.Orchestrator.Concurrency, orchestrator.WithProcessManager(processes))

	pl := pipeline.New(registry, cfg.Pipeline.ReadConcurrency, pipeline.WithCache(cfg.Pipeline.CacheSize))

	var debugger recovery.Debugger
	if llmClient != nil {
		debugger = recovery.NewLLMDebugger(llmClient)
	} else {
		debugger = staticOnlyDebugger{}
	}
	recoveryModule := recovery.New(debugger, orch, cfg.Recovery.MaxAttempts,
		recovery.WithFailureThreshold(cfg.Recovery.FailureThreshold))
	orch.SetRecovery(recoveryModule)

	assembler := forgecontext.NewAssembler(cfg.Safety.AllowedBasePaths)

	return &Runtime{
		Config:           cfg,
		Registry:         registry,
		Sanitizer:        sanitizer,
		PathValidator:    pathValidator,
		Processes:        processes,
		Orchestrator:     orch,
		Pipeline:         pl,
		Recovery:         recoveryModule,
		ContextAssembler: assembler,
		log:              log,
	}, nil
}

// registerBuiltinTools wires the concrete CallableTool bodies SPEC_FULL.md's
// "Built-in tool catalogue" names: read_file, write_file, grep_search,
// execute_command, exit_loop, escalate.
func registerBuiltinTools(registry *tool.Registry, pv *safety.PathValidator, sanitizer *safety.Sanitizer, processes *process.Manager) error {
	readDef, readImpl, err := tools.NewReadFile(pv)
	if err != nil {
		return err
	}
	if err := registry.Register(readDef, readImpl); err != nil {
		return err
	}

	writeDef, writeImpl, err := tools.NewWriteFile(pv)
	if err != nil {
		return err
	}
	if err := registry.Register(writeDef, writeImpl); err != nil {
		return err
	}

	grepDef, grepImpl, err := tools.NewGrepSearch(pv)
	if err != nil {
		return err
	}
	if err := registry.Register(grepDef, grepImpl); err != nil {
		return err
	}

	cmdDef, cmdImpl, err := tools.NewExecuteCommand(sanitizer, processes, 30*time.Second)
	if err != nil {
		return err
	}
	if err := registry.Register(cmdDef, cmdImpl); err != nil {
		return err
	}

	exitDef, exitImpl := tools.NewExitLoop()
	if err := registry.Register(exitDef, exitImpl); err != nil {
		return err
	}

	escalateDef, escalateImpl := tools.NewEscalate()
	if err := registry.Register(escalateDef, escalateImpl); err != nil {
		return err
	}

	return nil
}

// staticOnlyDebugger is the zero-value Debugger used when no LLM client
// is configured: it always fails, forcing recovery.Module.Recover
// straight to its static fallback table (spec.md §6 step 2 "If the LLM
// call itself fails, fall back to a static heuristic table").
type staticOnlyDebugger struct{}

func (staticOnlyDebugger) Propose(_ context.Context, _ recovery.FailureContext) ([]recovery.Strategy, error) {
	return nil, fmt.Errorf("runtime: no llm client configured")
}

// Classify exposes the query classifier (spec.md §2 supporting piece)
// ahead of a Submit call, so a host can decide its context strategy
// before spending an orchestrator task.
func Classify(prompt string) classifier.Classification {
	return classifier.Classify(prompt)
}

// Start spawns the Orchestrator's worker pool.
func (r *Runtime) Start() { r.Orchestrator.Start() }

// Stop drains the Orchestrator and tears down every live process handle.
func (r *Runtime) Stop() { r.Orchestrator.Stop() }
