package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/forge/pkg/process"
	"github.com/kadirpekel/forge/pkg/safety"
	"github.com/kadirpekel/forge/pkg/tool"
)

func TestExecuteCommandCapturesOutput(t *testing.T) {
	_, impl, err := NewExecuteCommand(safety.NewSanitizer(), process.NewManager(), 5*time.Second)
	require.NoError(t, err)

	res, err := impl(context.Background(), map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Contains(t, res.Output, "hello")
}

func TestExecuteCommandRejectsDangerousPattern(t *testing.T) {
	_, impl, err := NewExecuteCommand(safety.NewSanitizer(), process.NewManager(), 5*time.Second)
	require.NoError(t, err)

	res, err := impl(context.Background(), map[string]any{"command": "rm -rf /"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	errType, ok := res.ErrorType()
	require.True(t, ok)
	assert.Equal(t, tool.ErrSecurity, errType)
}

func TestExecuteCommandTimesOutOnSlowCommand(t *testing.T) {
	_, impl, err := NewExecuteCommand(safety.NewSanitizer(), process.NewManager(), 50*time.Millisecond)
	require.NoError(t, err)

	res, err := impl(context.Background(), map[string]any{"command": "sleep 5"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	errType, ok := res.ErrorType()
	require.True(t, ok)
	assert.Equal(t, tool.ErrTimeout, errType)
}
