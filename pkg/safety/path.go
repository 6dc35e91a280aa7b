// Package safety implements the Command Sanitizer & Path Validator (C2):
// it classifies shell commands and filesystem paths as safe or unsafe
// before the Orchestrator lets a tool implementation touch either. The
// checks here are grounded in hector's filetool.validatePath and its
// CommandTool.validateCommand, generalized to the configurable
// allowed-base / forbidden-pattern lists spec.md §4.2 requires.
package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/kadirpekel/forge/pkg/tool"
)

const maxPathLength = 4096

// PathValidator answers whether a filesystem path may be touched by a
// tool, and resolves it to a canonical absolute form.
type PathValidator struct {
	allowedBases      []string
	forbiddenPatterns []string
}

// NewPathValidator builds a validator over the given allowed base
// directories and forbidden substring patterns. Both lists come from the
// host's startup configuration (spec.md §6 "Environment") and may be
// swapped out at runtime via SetAllowedBases/SetForbiddenPatterns when the
// config file changes underneath a live validator.
func NewPathValidator(allowedBases, forbiddenPatterns []string) *PathValidator {
	v := &PathValidator{}
	v.SetAllowedBases(allowedBases)
	v.SetForbiddenPatterns(forbiddenPatterns)
	return v
}

// DefaultForbiddenPatterns is the baseline deny-list of well-known
// sensitive locations and traversal shapes, enumerated explicitly as
// spec.md §4.2 requires rather than left as an implicit "secure by
// convention" claim.
var DefaultForbiddenPatterns = []string{
	"..",
	"/etc/passwd",
	"/etc/shadow",
	"/etc/sudoers",
	"/proc/",
	"/sys/",
	"/dev/",
	"/.ssh/",
	"/.aws/",
	"/.gnupg/",
	".git/config",
}

func (v *PathValidator) SetAllowedBases(bases []string) {
	resolved := make([]string, 0, len(bases))
	for _, b := range bases {
		if abs, err := filepath.Abs(b); err == nil {
			resolved = append(resolved, filepath.Clean(abs))
		}
	}
	v.allowedBases = resolved
}

func (v *PathValidator) SetForbiddenPatterns(patterns []string) {
	v.forbiddenPatterns = append([]string(nil), patterns...)
}

// Validate implements the five-step check spec.md §4.2 describes. It
// resolves precedence between "escapes allowed base" and "does not
// exist" in favor of the former (spec.md §9 Open Question 2): an escape
// attempt is always a security rejection, regardless of whether the
// target happens to exist. errType classifies a rejection per spec.md
// §7's taxonomy so callers can stamp Result.Metadata["error_type"]
// instead of collapsing every rejection to INTERNAL.
func (v *PathValidator) Validate(path string, allowCreation bool) (ok bool, errType tool.ErrorType, reason string, resolved string) {
	if path == "" {
		return false, tool.ErrValidation, "path is empty", ""
	}
	if len(path) > maxPathLength {
		return false, tool.ErrValidation, fmt.Sprintf("path exceeds %d bytes", maxPathLength), ""
	}

	for _, r := range path {
		if r <= unicode.MaxASCII && unicode.IsControl(r) {
			return false, tool.ErrValidation, "path contains control characters", ""
		}
	}

	for _, pattern := range v.forbiddenPatterns {
		if pattern == ".." {
			if containsTraversalSegment(path) {
				return false, tool.ErrSecurity, "path contains a parent-directory traversal segment", ""
			}
			continue
		}
		if strings.Contains(path, pattern) {
			return false, tool.ErrSecurity, fmt.Sprintf("path matches forbidden pattern %q", pattern), ""
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return false, tool.ErrInternal, fmt.Sprintf("failed to resolve path: %v", err), ""
	}
	abs = filepath.Clean(abs)

	if len(v.allowedBases) == 0 {
		return false, tool.ErrInternal, "no allowed base directories configured", ""
	}
	if !withinAnyBase(abs, v.allowedBases) {
		return false, tool.ErrSecurity, "path does not lie within any allowed base directory", ""
	}

	if !allowCreation {
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return false, tool.ErrFileNotFound, "path does not exist", ""
		}
	}

	return true, "", "", abs
}

func containsTraversalSegment(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func withinAnyBase(resolved string, bases []string) bool {
	for _, base := range bases {
		if resolved == base {
			return true
		}
		if strings.HasPrefix(resolved, base+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
