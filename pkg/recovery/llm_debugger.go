package recovery

import (
	"context"
	"fmt"

	"github.com/kadirpekel/forge/pkg/llm"
)

// LLMDebugger backs the Debugger interface with an llm.DebuggerClient,
// translating its wire-level strategies into this package's Strategy
// type. This is the production Debugger; tests use a stub instead.
type LLMDebugger struct {
	client *llm.DebuggerClient
}

// NewLLMDebugger wraps an llm.Client as a recovery Debugger.
func NewLLMDebugger(client llm.Client) *LLMDebugger {
	return &LLMDebugger{client: llm.NewDebuggerClient(client)}
}

func (d *LLMDebugger) Propose(ctx context.Context, fc FailureContext) ([]Strategy, error) {
	wire, err := d.client.Propose(ctx, fc.Goal, fc.Invocation.Tool, fc.Result.Error)
	if err != nil {
		return nil, err
	}

	out := make([]Strategy, 0, len(wire))
	for _, w := range wire {
		kind := StrategyKind(w.Kind)
		switch kind {
		case ParameterAdjustment, AlternativeCommand, Decomposition, FallbackTool, UserEscalation, Abandon:
		default:
			return nil, fmt.Errorf("recovery: llm proposed unknown strategy kind %q", w.Kind)
		}
		out = append(out, Strategy{
			Kind:                 kind,
			Description:          w.Description,
			Confidence:           w.Confidence,
			Risk:                 RiskLevel(w.Risk),
			EstimatedSuccessRate: w.EstimatedSuccessRate,
			AdjustedArgs:         w.AdjustedArgs,
			Rationale:            w.Rationale,
		})
	}
	return out, nil
}
