package safety

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/forge/pkg/tool"
)

func TestPathValidatorClosure(t *testing.T) {
	base := t.TempDir()
	v := NewPathValidator([]string{base}, DefaultForbiddenPatterns)

	existing := filepath.Join(base, "a.txt")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	ok, _, reason, resolved := v.Validate(existing, false)
	require.True(t, ok, reason)
	assert.True(t, withinAnyBase(resolved, []string{filepath.Clean(base)}))
}

func TestPathValidatorRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	v := NewPathValidator([]string{base}, DefaultForbiddenPatterns)

	ok, errType, reason, _ := v.Validate(filepath.Join(base, "..", "..", "etc", "passwd"), false)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
	assert.Equal(t, tool.ErrSecurity, errType)
}

func TestPathValidatorRejectsOutsideBase(t *testing.T) {
	base := t.TempDir()
	other := t.TempDir()
	v := NewPathValidator([]string{base}, nil)

	ok, errType, reason, _ := v.Validate(filepath.Join(other, "x.txt"), true)
	assert.False(t, ok)
	assert.Contains(t, reason, "allowed base")
	assert.Equal(t, tool.ErrSecurity, errType)
}

func TestPathValidatorEscapePrecedesExistence(t *testing.T) {
	// Open Question 2: an escape attempt is rejected before "does not
	// exist" is ever considered, even for a nonexistent target.
	base := t.TempDir()
	v := NewPathValidator([]string{base}, nil)

	ok, errType, reason, _ := v.Validate(filepath.Join(base, "..", "definitely-does-not-exist"), false)
	assert.False(t, ok)
	assert.Contains(t, reason, "traversal")
	assert.Equal(t, tool.ErrSecurity, errType)
}

func TestPathValidatorRequiresCreationFlagForMissingFile(t *testing.T) {
	base := t.TempDir()
	v := NewPathValidator([]string{base}, nil)

	ok, errType, _, _ := v.Validate(filepath.Join(base, "missing.txt"), false)
	assert.False(t, ok)
	assert.Equal(t, tool.ErrFileNotFound, errType)

	ok, _, _, resolved := v.Validate(filepath.Join(base, "missing.txt"), true)
	assert.True(t, ok)
	assert.NotEmpty(t, resolved)
}

func TestPathValidatorRejectsEmptyAndOversized(t *testing.T) {
	v := NewPathValidator([]string{"/tmp"}, nil)

	ok, errType, _, _ := v.Validate("", true)
	assert.False(t, ok)
	assert.Equal(t, tool.ErrValidation, errType)

	ok, _, _, _ = v.Validate(string(make([]byte, maxPathLength+1)), true)
	assert.False(t, ok)
}

func TestPathValidatorRejectsControlCharacters(t *testing.T) {
	v := NewPathValidator([]string{"/tmp"}, nil)
	ok, errType, reason, _ := v.Validate("/tmp/foo\x00bar", true)
	assert.False(t, ok)
	assert.Contains(t, reason, "control")
	assert.Equal(t, tool.ErrValidation, errType)
}
