package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/forge/pkg/config"
	"github.com/kadirpekel/forge/pkg/tool"
)

func TestNewRegistersBuiltinTools(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)

	rt, err := New(cfg, nil)
	require.NoError(t, err)

	for _, name := range []string{"read_file", "write_file", "grep_search", "execute_command", "exit_loop", "escalate"} {
		_, _, ok := rt.Registry.Lookup(name)
		assert.True(t, ok, "expected %s to be registered", name)
	}
}

func TestRuntimeSubmitAndResult(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)

	rt, err := New(cfg, nil)
	require.NoError(t, err)
	rt.Start()
	defer rt.Stop()

	taskID := rt.Orchestrator.Submit("exit_loop", map[string]any{}, tool.PriorityNormal, 0)
	result, ok := rt.Orchestrator.Result(taskID, 5*time.Second)
	require.True(t, ok)
	assert.True(t, result.Success)
}
