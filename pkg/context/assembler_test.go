package context

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRankOrdersByScoreRelevance(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orchestrator.go", "package orchestrator\n\nfunc Submit() {}\n")
	writeFile(t, dir, "unrelated.go", "package unrelated\n\nfunc Noop() {}\n")
	writeFile(t, dir, "README.md", "this project has an orchestrator component\n")

	a := NewAssembler([]string{dir})
	results, err := a.Rank(context.Background(), "orchestrator submit", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, filepath.Join(dir, "orchestrator.go"), results[0].Path)
}

func TestRankRespectsTopK(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, dir, filepath.Join("pkg", "file"+string(rune('a'+i))+".go"), "package pkg\n// mentions target keyword here\n")
	}

	a := NewAssembler([]string{dir})
	results, err := a.Rank(context.Background(), "target", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRankSkipsVendorAndGitDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, filepath.Join("vendor", "lib.go"), "package lib\n// target\n")
	writeFile(t, dir, filepath.Join(".git", "config"), "target\n")
	writeFile(t, dir, "main.go", "package main\n// target\n")

	a := NewAssembler([]string{dir})
	results, err := a.Rank(context.Background(), "target", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Path, "vendor")
		assert.NotContains(t, r.Path, ".git")
	}
}

func TestRankEmptyQueryReturnsNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n")

	a := NewAssembler([]string{dir})
	results, err := a.Rank(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
