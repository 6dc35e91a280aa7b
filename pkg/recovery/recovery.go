// Package recovery implements the error-recovery loop (C6): when a tool
// invocation fails, a Debugger persona proposes ranked RecoveryStrategies,
// which are filtered, deduplicated against a per-session signature set,
// and applied in order by resubmitting to the Orchestrator. The bounded
// state machine and loop-prevention signature sets are grounded on
// ocode's ErrorRecoveryModule (original_source/test_error_recovery*.py),
// adapted from ocode's asyncio coroutine shape into an explicit Go state
// machine driven by channel-free synchronous calls, matching hector's
// preference for plain method calls over goroutine-per-step pipelines
// seen in pkg/runtime.
package recovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/forge/pkg/logger"
	"github.com/kadirpekel/forge/pkg/tool"
)

// StrategyKind enumerates the recovery strategy taxonomy.
type StrategyKind string

const (
	ParameterAdjustment StrategyKind = "PARAMETER_ADJUSTMENT"
	AlternativeCommand  StrategyKind = "ALTERNATIVE_COMMAND"
	Decomposition       StrategyKind = "DECOMPOSITION"
	FallbackTool        StrategyKind = "FALLBACK_TOOL"
	UserEscalation      StrategyKind = "USER_ESCALATION"
	Abandon             StrategyKind = "ABANDON"
)

// RiskLevel is the qualitative risk band of attempting a strategy.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// FailureContext is the input the Debugger reasons over.
type FailureContext struct {
	Goal       string
	Invocation tool.Invocation
	Result     *tool.Result
	WorkDir    string
	RetryCount int
	Env        map[string]string
}

// AlternativeInvocation is one step of a DECOMPOSITION or FALLBACK_TOOL
// strategy's sequential replacement plan.
type AlternativeInvocation struct {
	Tool string
	Args map[string]any
}

// Strategy is a single proposed recovery action. Confidence and
// EstimatedSuccessRate are clamped to [0,1] by clampStrategy; Description
// must be non-empty or the strategy is dropped.
type Strategy struct {
	Kind                  StrategyKind
	Description           string
	Confidence            float64
	Risk                  RiskLevel
	EstimatedSuccessRate  float64
	AdjustedArgs          map[string]any
	AlternativeInvocations []AlternativeInvocation
	Rationale             string
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampStrategy(s Strategy) Strategy {
	s.Confidence = clampUnit(s.Confidence)
	s.EstimatedSuccessRate = clampUnit(s.EstimatedSuccessRate)
	return s
}

// Debugger proposes ranked recovery strategies for a failure. Production
// callers back this with an LLM consultation (pkg/llm); tests and the
// static-fallback path use a table-driven stub.
type Debugger interface {
	Propose(ctx context.Context, fc FailureContext) ([]Strategy, error)
}

// Orchestrator is the subset of *orchestrator.Orchestrator recovery
// depends on, named here so it can be stubbed in tests without an import
// cycle back to pkg/orchestrator.
type Orchestrator interface {
	Submit(toolName string, args map[string]any, priority tool.Priority, timeout time.Duration) string
	Result(taskID string, timeout time.Duration) (*tool.Result, bool)
}

// Outcome describes the result of a recovery session, carrying the
// original or recovered ToolResult plus bookkeeping for the caller.
type Outcome struct {
	Result           *tool.Result
	Attempts         int
	StrategiesTried  []StrategyKind
	Recovered        bool
}

// state is the session state machine: IDLE -> ANALYZING -> TRYING ->
// {SUCCEEDED, EXHAUSTED}. There is no re-entry; a failure during TRYING
// never spawns a nested recovery session.
type state int

const (
	stateIdle state = iota
	stateAnalyzing
	stateTrying
	stateSucceeded
	stateExhausted
)

// noRecovery is the set of error types the Orchestrator must never route
// into recovery (spec.md §6 "Trigger").
var noRecovery = map[tool.ErrorType]bool{
	tool.ErrValidation: true,
	tool.ErrSecurity:   true,
}

// ShouldRecover reports whether a failed result is eligible for recovery.
func ShouldRecover(result *tool.Result) bool {
	if result == nil || result.Success {
		return false
	}
	et, ok := result.ErrorType()
	if !ok {
		return true
	}
	return !noRecovery[et]
}

// Module runs recovery sessions. One Module may be shared across
// sessions; each Recover call is an independent state machine with its
// own loop-prevention signature sets (spec.md "No re-entry").
type Module struct {
	debugger           Debugger
	orchestrator       Orchestrator
	maxAttempts        int
	failureThreshold   int
	consultTimeout     time.Duration
	log                *slog.Logger

	failureHistory map[string]int // (tool, error_type) -> prior failure count
}

// Option configures a Module.
type Option func(*Module)

// WithFailureThreshold overrides how many prior failures of the same
// (tool, error_type) signature force ABANDON/USER_ESCALATION-only
// filtering (default 3).
func WithFailureThreshold(n int) Option {
	return func(m *Module) { m.failureThreshold = n }
}

// WithConsultTimeout bounds the Debugger.Propose call.
func WithConsultTimeout(d time.Duration) Option {
	return func(m *Module) { m.consultTimeout = d }
}

// New builds a Module. maxAttempts caps tool invocations per recovery
// session (default 3, matching spec.md §6).
func New(debugger Debugger, orchestrator Orchestrator, maxAttempts int, opts ...Option) *Module {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	m := &Module{
		debugger:         debugger,
		orchestrator:     orchestrator,
		maxAttempts:      maxAttempts,
		failureThreshold: 3,
		consultTimeout:   20 * time.Second,
		log:              logger.Default(),
		failureHistory:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Recover runs one bounded recovery session for a failed invocation.
func (m *Module) Recover(ctx context.Context, fc FailureContext) Outcome {
	sessionID := uuid.NewString()

	failSig := failureSignature(fc.Invocation.Tool, fc.Result)
	priorFailures := m.failureHistory[failSig]
	restrictedToTerminal := priorFailures >= m.failureThreshold

	strategies, err := m.consult(ctx, fc)
	if err != nil {
		m.log.Warn("recovery: debugger consultation failed, using static fallback",
			"session", sessionID, "error", err)
		strategies = staticFallback(fc)
	}

	strategies = filterAndRank(strategies, restrictedToTerminal)
	if len(strategies) == 0 {
		m.failureHistory[failSig] = priorFailures + 1
		return Outcome{Result: fc.Result, Attempts: 0}
	}

	st := stateTrying
	seen := make(map[string]bool)
	var tried []StrategyKind
	attempts := 0

	for _, strat := range strategies {
		if attempts >= m.maxAttempts {
			break
		}
		sig := strategySignature(strat)
		if seen[sig] {
			continue
		}
		seen[sig] = true

		if strat.Kind == Abandon || strat.Kind == UserEscalation {
			tried = append(tried, strat.Kind)
			break
		}

		result, usedAttempts := m.apply(ctx, fc, strat, m.maxAttempts-attempts)
		attempts += usedAttempts
		tried = append(tried, strat.Kind)

		if result != nil && result.Success {
			st = stateSucceeded
			m.failureHistory[failSig] = 0
			return withRecoveryMetadata(Outcome{
				Result:          result,
				Attempts:        attempts,
				StrategiesTried: tried,
				Recovered:       true,
			})
		}
	}

	st = stateExhausted
	_ = st
	m.failureHistory[failSig] = priorFailures + 1
	return withRecoveryMetadata(Outcome{
		Result:          fc.Result,
		Attempts:        attempts,
		StrategiesTried: tried,
	})
}

func (m *Module) consult(ctx context.Context, fc FailureContext) ([]Strategy, error) {
	cctx, cancel := context.WithTimeout(ctx, m.consultTimeout)
	defer cancel()
	return m.debugger.Propose(cctx, fc)
}

// apply executes a strategy against the Orchestrator, either as a single
// adjusted resubmission or a sequential AlternativeInvocations plan, and
// returns the final result plus how many tool invocations it consumed.
func (m *Module) apply(ctx context.Context, fc FailureContext, strat Strategy, budget int) (*tool.Result, int) {
	if len(strat.AlternativeInvocations) > 0 {
		used := 0
		var last *tool.Result
		for _, alt := range strat.AlternativeInvocations {
			if used >= budget {
				break
			}
			taskID := m.orchestrator.Submit(alt.Tool, alt.Args, fc.Invocation.Priority, fc.Invocation.Timeout)
			used++
			res, ok := m.orchestrator.Result(taskID, resultWait(fc.Invocation.Timeout))
			if !ok {
				last = tool.Failure(tool.ErrTimeout, "recovery step timed out awaiting result")
				break
			}
			last = res
			if !res.Success {
				break
			}
		}
		return last, used
	}

	args := strat.AdjustedArgs
	if args == nil {
		args = fc.Invocation.Args
	}
	taskID := m.orchestrator.Submit(fc.Invocation.Tool, args, fc.Invocation.Priority, fc.Invocation.Timeout)
	res, ok := m.orchestrator.Result(taskID, resultWait(fc.Invocation.Timeout))
	if !ok {
		return tool.Failure(tool.ErrTimeout, "recovery attempt timed out awaiting result"), 1
	}
	return res, 1
}

func resultWait(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 30 * time.Second
	}
	return timeout + 5*time.Second
}

func withRecoveryMetadata(o Outcome) Outcome {
	if o.Result == nil {
		return o
	}
	if o.Result.Metadata == nil {
		o.Result.Metadata = map[string]any{}
	}
	o.Result.Metadata["recovery_attempts"] = o.Attempts
	kinds := make([]string, 0, len(o.StrategiesTried))
	for _, k := range o.StrategiesTried {
		kinds = append(kinds, string(k))
	}
	o.Result.Metadata["recovery_strategies_tried"] = kinds
	return o
}

// filterAndRank drops invalid strategies (empty description), clamps
// confidence/rate, and — when the failure signature has exceeded the
// threshold — restricts the set to ABANDON/USER_ESCALATION only (spec.md
// §6 "Loop prevention"). Surviving strategies are stable-sorted by
// descending confidence.
func filterAndRank(strategies []Strategy, restrictToTerminal bool) []Strategy {
	out := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s.Description == "" {
			continue
		}
		s = clampStrategy(s)
		if restrictToTerminal && s.Kind != Abandon && s.Kind != UserEscalation {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// strategySignature fingerprints a strategy by kind and adjusted-args
// shape so the same (kind, args) pair is never retried twice within one
// session.
func strategySignature(s Strategy) string {
	data, _ := json.Marshal(s.AdjustedArgs)
	sum := sha256.Sum256([]byte(string(s.Kind) + "\x1f" + string(data)))
	return hex.EncodeToString(sum[:])
}

// failureSignature identifies a (tool, error_type) pair across recovery
// sessions for the cross-session threshold check.
func failureSignature(toolName string, result *tool.Result) string {
	et, _ := result.ErrorType()
	return fmt.Sprintf("%s::%s", toolName, et)
}

// staticFallback is the heuristic table consulted when the Debugger
// itself fails, keyed by error_type, grounded on ocode's
// ErrorRecoveryModule fallback path (original_source/test_error_recovery.py).
func staticFallback(fc FailureContext) []Strategy {
	et, _ := fc.Result.ErrorType()
	switch et {
	case tool.ErrFileNotFound:
		return []Strategy{{
			Kind:                 ParameterAdjustment,
			Description:          "retry with parent directory created",
			Confidence:           0.4,
			Risk:                 RiskLow,
			EstimatedSuccessRate: 0.3,
			AdjustedArgs:         fc.Invocation.Args,
			Rationale:            "static fallback for FILE_NOT_FOUND",
		}}
	case tool.ErrTimeout:
		return []Strategy{{
			Kind:                 AlternativeCommand,
			Description:          "retry once with an extended timeout",
			Confidence:           0.3,
			Risk:                 RiskMedium,
			EstimatedSuccessRate: 0.25,
			AdjustedArgs:         fc.Invocation.Args,
			Rationale:            "static fallback for TIMEOUT",
		}}
	case tool.ErrPermission, tool.ErrResource, tool.ErrNetwork, tool.ErrInternal, tool.ErrDependency, tool.ErrCancelled:
		return []Strategy{{
			Kind:                 UserEscalation,
			Description:          "escalate to the user; no safe automated retry known",
			Confidence:           0.5,
			Risk:                 RiskLow,
			EstimatedSuccessRate: 0,
			Rationale:            "static fallback has no automated remedy for this error type",
		}}
	default:
		return []Strategy{{
			Kind:        Abandon,
			Description: "no recovery strategy available for this failure",
			Risk:        RiskLow,
			Rationale:   "unrecognized error_type in static fallback table",
		}}
	}
}
