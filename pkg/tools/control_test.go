package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitLoopSignalsCompletion(t *testing.T) {
	_, impl := NewExitLoop()
	res, err := impl(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "exit_loop", res.Metadata["control"])
}

func TestEscalateCarriesReason(t *testing.T) {
	_, impl := NewEscalate()
	res, err := impl(context.Background(), map[string]any{"reason": "stuck on ambiguous spec"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "stuck on ambiguous spec", res.Metadata["reason"])
}
