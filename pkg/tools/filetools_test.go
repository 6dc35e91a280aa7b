package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/forge/pkg/safety"
	"github.com/kadirpekel/forge/pkg/tool"
)

func validatorFor(t *testing.T, base string) *safety.PathValidator {
	t.Helper()
	return safety.NewPathValidator([]string{base}, safety.DefaultForbiddenPatterns)
}

func TestReadFileReturnsContentWithLineNumbers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree"), 0o644))

	_, impl, err := NewReadFile(validatorFor(t, dir))
	require.NoError(t, err)

	res, err := impl(context.Background(), map[string]any{"path": path})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "1: one")
}

func TestReadFileRejectsPathOutsideAllowedBase(t *testing.T) {
	dir := t.TempDir()
	_, impl, err := NewReadFile(validatorFor(t, dir))
	require.NoError(t, err)

	res, err := impl(context.Background(), map[string]any{"path": "/etc/passwd"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	errType, ok := res.ErrorType()
	require.True(t, ok)
	assert.Equal(t, tool.ErrSecurity, errType)
}

func TestReadFileMissingFileIsFileNotFound(t *testing.T) {
	dir := t.TempDir()
	_, impl, err := NewReadFile(validatorFor(t, dir))
	require.NoError(t, err)

	res, err := impl(context.Background(), map[string]any{"path": filepath.Join(dir, "missing.txt")})
	require.NoError(t, err)
	assert.False(t, res.Success)
	errType, ok := res.ErrorType()
	require.True(t, ok)
	assert.Equal(t, tool.ErrFileNotFound, errType)
}

func TestWriteFileCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	_, impl, err := NewWriteFile(validatorFor(t, dir))
	require.NoError(t, err)

	target := filepath.Join(dir, "nested", "out.txt")
	res, err := impl(context.Background(), map[string]any{"path": target, "content": "hello"})
	require.NoError(t, err)
	require.True(t, res.Success)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestGrepSearchFindsMatchingLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta error\ngamma\n"), 0o644))

	_, impl, err := NewGrepSearch(validatorFor(t, dir))
	require.NoError(t, err)

	res, err := impl(context.Background(), map[string]any{"path": path, "pattern": "error"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "beta error")
}
