package tools

import (
	"context"

	"github.com/kadirpekel/forge/pkg/tool"
)

// NewExitLoop builds the exit_loop control tool: calling it signals the
// reasoning loop the task is complete, grounded on hector's
// controltool.ExitLoop (pkg/tool/controltool/control.go), adapted from
// hector's EventActions side-channel into a plain Result.Metadata flag
// since forge's Orchestrator has no per-turn action-flags object to set.
func NewExitLoop() (tool.Definition, tool.Implementation) {
	def := tool.Definition{
		Name:        "exit_loop",
		Category:    "control",
		Description: "Exits the reasoning loop. Call this when your task is complete and you have a final answer.",
	}
	impl := func(ctx context.Context, args map[string]any) (*tool.Result, error) {
		result := tool.SuccessResult("Task marked as complete. Exiting reasoning loop.")
		result.Metadata = map[string]any{"control": "exit_loop"}
		return result, nil
	}
	return def, impl
}

// NewEscalate builds the escalate control tool: signals that the
// reasoning loop is stuck and needs a human or parent agent, grounded on
// hector's controltool.Escalate.
func NewEscalate() (tool.Definition, tool.Implementation) {
	def := tool.Definition{
		Name:        "escalate",
		Category:    "control",
		Description: "Escalates to a human or parent agent. Call this when stuck or the task is outside your capabilities.",
		Parameters: []tool.ParameterSpec{
			{Name: "reason", Type: tool.TypeString, Description: "Why you are escalating", Required: true},
		},
	}
	impl := func(ctx context.Context, args map[string]any) (*tool.Result, error) {
		reason, _ := args["reason"].(string)
		if reason == "" {
			reason = "no reason provided"
		}
		result := tool.SuccessResult("Escalating: " + reason)
		result.Metadata = map[string]any{"control": "escalate", "reason": reason}
		return result, nil
	}
	return def, impl
}
