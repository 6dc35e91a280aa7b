package tools

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/forge/pkg/process"
	"github.com/kadirpekel/forge/pkg/safety"
	"github.com/kadirpekel/forge/pkg/tool"
	"github.com/kadirpekel/forge/pkg/tool/functiontool"
)

// ExecuteCommandArgs mirrors hector's CommandTool argument shape
// (pkg/tools/command.go's "command"/"working_dir" map keys), typed.
type ExecuteCommandArgs struct {
	Command    string            `json:"command" jsonschema:"required,description=Shell command to execute"`
	WorkingDir string            `json:"working_dir,omitempty" jsonschema:"description=Working directory for the command"`
	Env        map[string]string `json:"env,omitempty" jsonschema:"description=Additional environment variables"`
	Strict     bool              `json:"strict,omitempty" jsonschema:"description=Reject wildcard bulk deletion in addition to the baseline deny-list,default=false"`
}

// NewExecuteCommand builds the execute_command tool: a Sanitizer rejects
// dangerous shell shapes before a Process Manager spawns anything, and
// the escalation protocol on timeout runs through Manager.Terminate
// rather than a bare process.Kill, grounded on hector's
// executeCommandStreaming/Process Manager pairing.
func NewExecuteCommand(sanitizer *safety.Sanitizer, processes *process.Manager, defaultTimeout time.Duration) (tool.Definition, tool.Implementation, error) {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}

	return functiontool.Build(functiontool.Config{
		Name:        "execute_command",
		Category:    "shell",
		Description: "Execute a shell command under sandboxing and timeout constraints, returning combined stdout/stderr.",
	}, func(ctx context.Context, args ExecuteCommandArgs) (map[string]any, error) {
		ok, _, errType, reason := sanitizer.Sanitize(args.Command, args.Strict)
		if !ok {
			return nil, tool.NewError(errType, reason)
		}

		envMap := sanitizer.FilterEnv(toAnyMap(args.Env))
		env := make([]string, 0, len(envMap))
		for k, v := range envMap {
			env = append(env, k+"="+v)
		}

		execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		defer cancel()

		workDir := args.WorkingDir
		if workDir == "" {
			workDir = "."
		}

		// The process runs on a context that the timeout does not cancel, so
		// a timeout reaches it only through Manager.Terminate below.
		var output bytes.Buffer
		handle, err := processes.SpawnCapturing(context.WithoutCancel(ctx), args.Command, workDir, env, &output)
		if err != nil {
			return nil, tool.NewError(tool.ErrInternal, fmt.Sprintf("spawn: %v", err))
		}

		start := time.Now()
		waitCh := make(chan error, 1)
		go func() { waitCh <- processes.Wait(handle) }()

		var waitErr error
		select {
		case waitErr = <-waitCh:
		case <-execCtx.Done():
			processes.Terminate(handle)
			return nil, tool.NewError(tool.ErrTimeout, fmt.Sprintf("command timed out after %s", defaultTimeout))
		}
		elapsed := time.Since(start)

		result := map[string]any{
			"output":         output.String(),
			"execution_time": elapsed.String(),
			"command":        args.Command,
		}
		if waitErr != nil {
			return nil, tool.NewError(tool.ErrInternal, fmt.Sprintf("command exited with error: %v", waitErr))
		}
		return result, nil
	})
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
