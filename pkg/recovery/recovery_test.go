package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/forge/pkg/tool"
)

type stubDebugger struct {
	strategies []Strategy
	err        error
	calls      int
}

func (d *stubDebugger) Propose(ctx context.Context, fc FailureContext) ([]Strategy, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.strategies, nil
}

type stubOrchestrator struct {
	mu      sync.Mutex
	seq     int
	results map[string]*tool.Result
	exec    func(toolName string, args map[string]any) *tool.Result
}

func newStubOrchestrator(exec func(toolName string, args map[string]any) *tool.Result) *stubOrchestrator {
	return &stubOrchestrator{results: make(map[string]*tool.Result), exec: exec}
}

func (s *stubOrchestrator) Submit(toolName string, args map[string]any, priority tool.Priority, timeout time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := string(rune('A' + s.seq))
	s.results[id] = s.exec(toolName, args)
	return id
}

func (s *stubOrchestrator) Result(taskID string, timeout time.Duration) (*tool.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[taskID]
	return r, ok
}

func baseFailure() FailureContext {
	return FailureContext{
		Goal: "read a file",
		Invocation: tool.Invocation{
			Tool:     "flaky",
			Args:     map[string]any{"path": "x.txt"},
			Priority: tool.PriorityNormal,
		},
		Result: tool.Failure(tool.ErrPermission, "permission denied"),
	}
}

func TestRecoverSucceedsOnFirstStrategy(t *testing.T) {
	called := 0
	orch := newStubOrchestrator(func(name string, args map[string]any) *tool.Result {
		called++
		if use, _ := args["use_fallback"].(bool); use {
			return tool.SuccessResult("ok")
		}
		return tool.Failure(tool.ErrPermission, "still denied")
	})

	debugger := &stubDebugger{strategies: []Strategy{
		{
			Kind:        ParameterAdjustment,
			Description: "add use_fallback",
			Confidence:  0.9,
			Risk:        RiskLow,
			AdjustedArgs: map[string]any{"path": "x.txt", "use_fallback": true},
		},
	}}

	m := New(debugger, orch, 3)
	outcome := m.Recover(context.Background(), baseFailure())

	require.True(t, outcome.Result.Success)
	assert.True(t, outcome.Recovered)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, called)
}

func TestRecoverExhaustsAndReturnsOriginalFailure(t *testing.T) {
	orch := newStubOrchestrator(func(name string, args map[string]any) *tool.Result {
		return tool.Failure(tool.ErrPermission, "still denied")
	})
	debugger := &stubDebugger{strategies: []Strategy{
		{Kind: ParameterAdjustment, Description: "try A", Confidence: 0.8, AdjustedArgs: map[string]any{"a": 1}},
		{Kind: ParameterAdjustment, Description: "try B", Confidence: 0.5, AdjustedArgs: map[string]any{"b": 2}},
	}}

	m := New(debugger, orch, 2)
	outcome := m.Recover(context.Background(), baseFailure())

	assert.False(t, outcome.Result.Success)
	assert.False(t, outcome.Recovered)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Len(t, outcome.StrategiesTried, 2)
}

func TestRecoverNeverRetriesDuplicateStrategySignature(t *testing.T) {
	calls := 0
	orch := newStubOrchestrator(func(name string, args map[string]any) *tool.Result {
		calls++
		return tool.Failure(tool.ErrPermission, "still denied")
	})
	dup := Strategy{Kind: ParameterAdjustment, Description: "dup", Confidence: 0.9, AdjustedArgs: map[string]any{"a": 1}}
	debugger := &stubDebugger{strategies: []Strategy{dup, dup, dup}}

	m := New(debugger, orch, 5)
	outcome := m.Recover(context.Background(), baseFailure())

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestRecoverFallsBackToStaticTableOnDebuggerError(t *testing.T) {
	orch := newStubOrchestrator(func(name string, args map[string]any) *tool.Result {
		return tool.SuccessResult("recovered")
	})
	debugger := &stubDebugger{err: assertError{"llm unavailable"}}

	m := New(debugger, orch, 3)
	fc := baseFailure()
	fc.Result = tool.Failure(tool.ErrFileNotFound, "missing")
	outcome := m.Recover(context.Background(), fc)

	require.True(t, outcome.Result.Success)
	assert.Contains(t, outcome.StrategiesTried, ParameterAdjustment)
}

func TestRecoverNeverTriggersForValidationErrors(t *testing.T) {
	assert.False(t, ShouldRecover(tool.Failure(tool.ErrValidation, "bad args")))
	assert.False(t, ShouldRecover(tool.Failure(tool.ErrSecurity, "blocked")))
	assert.True(t, ShouldRecover(tool.Failure(tool.ErrTimeout, "slow")))
	assert.False(t, ShouldRecover(tool.SuccessResult("fine")))
}

func TestRecoverRestrictsToTerminalStrategiesAfterThreshold(t *testing.T) {
	orch := newStubOrchestrator(func(name string, args map[string]any) *tool.Result {
		return tool.Failure(tool.ErrPermission, "still denied")
	})
	debugger := &stubDebugger{strategies: []Strategy{
		{Kind: ParameterAdjustment, Description: "keeps failing", Confidence: 0.9, AdjustedArgs: map[string]any{"a": 1}},
		{Kind: UserEscalation, Description: "escalate", Confidence: 0.1},
	}}

	m := New(debugger, orch, 3, WithFailureThreshold(1))
	fc := baseFailure()

	m.Recover(context.Background(), fc) // first failure, recorded
	outcome := m.Recover(context.Background(), fc) // second: threshold hit, only terminal strategies allowed

	assert.Equal(t, 0, outcome.Attempts)
	assert.False(t, outcome.Recovered)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
