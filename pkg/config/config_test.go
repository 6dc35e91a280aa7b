package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAppliesDefaultsAndValidates(t *testing.T) {
	yaml := []byte(`
safety:
  allowed_base_paths:
    - /work
orchestrator:
  concurrency: 3
`)
	cfg, err := decode(yaml)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Orchestrator.Concurrency)
	assert.Equal(t, 8, cfg.Pipeline.ReadConcurrency)
	assert.Equal(t, 3, cfg.Recovery.MaxAttempts)
	assert.Equal(t, "medium", cfg.Recovery.MaxRisk)
}

func TestDecodeRejectsMissingAllowedBase(t *testing.T) {
	_, err := decode([]byte(`orchestrator: {concurrency: 1}`))
	assert.Error(t, err)
}

func TestLoaderLoadFromFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("safety:\n  allowed_base_paths: [\""+dir+"\"]\n"), 0o644))

	provider, err := NewFileProvider(path)
	require.NoError(t, err)

	loader := NewLoader(provider)
	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Orchestrator.Concurrency)
}

func TestLoaderWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	contents := func(concurrency int) string {
		return "safety:\n  allowed_base_paths: [\"" + dir + "\"]\n" +
			"orchestrator:\n  concurrency: " + strconv.Itoa(concurrency) + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(contents(1)), 0o644))

	provider, err := NewFileProvider(path)
	require.NoError(t, err)

	reloaded := make(chan *Config, 1)
	loader := NewLoader(provider, WithOnChange(func(c *Config) { reloaded <- c }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, loader.Watch(ctx))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(contents(9)), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9, cfg.Orchestrator.Concurrency)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reload notification")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/work")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"/work"}, cfg.Safety.AllowedBasePaths)
	assert.NotEmpty(t, cfg.Safety.ForbiddenPatterns)
}
