// Package tools provides the built-in tool bodies forge registers at
// startup: file read/write/search and shell command execution, plus the
// control tools a reasoning loop uses to end or escalate a session. Each
// constructor wires functiontool.Build against an Implementation that
// calls through pkg/safety for validation before touching the
// filesystem or a shell, grounded on hector's pkg/tool/filetool package
// (read_file.go, write_file.go) and pkg/tools/command.go.
package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kadirpekel/forge/pkg/safety"
	"github.com/kadirpekel/forge/pkg/tool"
	"github.com/kadirpekel/forge/pkg/tool/functiontool"
)

// ReadFileArgs mirrors hector's ReadFileArgs shape.
type ReadFileArgs struct {
	Path        string `json:"path" jsonschema:"required,description=File path to read"`
	StartLine   int    `json:"start_line,omitempty" jsonschema:"description=Starting line number (1-indexed)"`
	EndLine     int    `json:"end_line,omitempty" jsonschema:"description=Ending line number (inclusive)"`
	LineNumbers bool   `json:"line_numbers,omitempty" jsonschema:"description=Include line numbers in output,default=true"`
}

const defaultMaxFileSize = 10 * 1024 * 1024

// NewReadFile builds the read_file tool, rejecting any path the
// PathValidator refuses before touching the filesystem.
func NewReadFile(validator *safety.PathValidator) (tool.Definition, tool.Implementation, error) {
	return functiontool.Build(functiontool.Config{
		Name:        "read_file",
		Category:    "filesystem",
		Description: "Read the contents of a file with optional line numbers and range selection.",
	}, func(ctx context.Context, args ReadFileArgs) (map[string]any, error) {
		ok, errType, reason, resolved := validator.Validate(args.Path, false)
		if !ok {
			return nil, tool.NewError(errType, reason)
		}

		info, err := os.Stat(resolved)
		if err != nil {
			return nil, statError(err, "stat")
		}
		if info.Size() > defaultMaxFileSize {
			return nil, tool.NewError(tool.ErrResource, fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), defaultMaxFileSize))
		}

		content, err := os.ReadFile(resolved)
		if err != nil {
			return nil, statError(err, "read")
		}

		lines := strings.Split(string(content), "\n")
		start := 1
		if args.StartLine > 0 {
			start = args.StartLine
		}
		end := len(lines)
		if args.EndLine > 0 && args.EndLine < end {
			end = args.EndLine
		}
		if start > len(lines) || start > end {
			return nil, tool.NewError(tool.ErrValidation, fmt.Sprintf("invalid line range [%d,%d] for %d lines", start, end, len(lines)))
		}

		selected := lines[start-1 : end]
		var out strings.Builder
		showNumbers := args.LineNumbers || args.StartLine > 0 || args.EndLine > 0
		for i, line := range selected {
			if showNumbers {
				fmt.Fprintf(&out, "%d: %s\n", start+i, line)
			} else {
				fmt.Fprintln(&out, line)
			}
		}

		return map[string]any{
			"path":        resolved,
			"total_lines": len(lines),
			"content":     out.String(),
		}, nil
	})
}

// statError classifies a filesystem error from an os package call into
// forge's ErrorType taxonomy (spec.md §7): missing/permission errors are
// recovery-eligible, anything else is an unclassified INTERNAL failure.
func statError(err error, verb string) error {
	switch {
	case os.IsNotExist(err):
		return tool.NewError(tool.ErrFileNotFound, fmt.Sprintf("%s: %v", verb, err))
	case os.IsPermission(err):
		return tool.NewError(tool.ErrPermission, fmt.Sprintf("%s: %v", verb, err))
	default:
		return tool.NewError(tool.ErrInternal, fmt.Sprintf("%s: %v", verb, err))
	}
}

// WriteFileArgs mirrors hector's write_file tool contract.
type WriteFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path to write"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
	Append  bool   `json:"append,omitempty" jsonschema:"description=Append instead of overwrite"`
}

// NewWriteFile builds the write_file tool.
func NewWriteFile(validator *safety.PathValidator) (tool.Definition, tool.Implementation, error) {
	return functiontool.Build(functiontool.Config{
		Name:        "write_file",
		Category:    "filesystem",
		Description: "Write or append content to a file, creating parent directories if needed.",
	}, func(ctx context.Context, args WriteFileArgs) (map[string]any, error) {
		ok, errType, reason, resolved := validator.Validate(args.Path, true)
		if !ok {
			return nil, tool.NewError(errType, reason)
		}

		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return nil, statError(err, "mkdir")
		}

		flags := os.O_CREATE | os.O_WRONLY
		if args.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(resolved, flags, 0o644)
		if err != nil {
			return nil, statError(err, "open")
		}
		defer f.Close()

		n, err := f.WriteString(args.Content)
		if err != nil {
			return nil, statError(err, "write")
		}
		return map[string]any{"path": resolved, "bytes_written": n}, nil
	})
}

// GrepArgs configures a plain substring search over a file, grounded on
// hector's filetool package's directory-scoped conventions but scoped
// here to a single file per invocation (the Stream Pipeline fans this
// out across a file set via parallel read operations).
type GrepArgs struct {
	Path          string `json:"path" jsonschema:"required,description=File path to search"`
	Pattern       string `json:"pattern" jsonschema:"required,description=Substring to search for"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"description=Match case-sensitively,default=true"`
}

// NewGrepSearch builds the grep_search tool.
func NewGrepSearch(validator *safety.PathValidator) (tool.Definition, tool.Implementation, error) {
	return functiontool.Build(functiontool.Config{
		Name:        "grep_search",
		Category:    "filesystem",
		Description: "Search a file for lines containing a substring pattern.",
	}, func(ctx context.Context, args GrepArgs) (map[string]any, error) {
		ok, errType, reason, resolved := validator.Validate(args.Path, false)
		if !ok {
			return nil, tool.NewError(errType, reason)
		}

		f, err := os.Open(resolved)
		if err != nil {
			return nil, statError(err, "open")
		}
		defer f.Close()

		needle := args.Pattern
		if !args.CaseSensitive {
			needle = strings.ToLower(needle)
		}

		type match struct {
			Line int    `json:"line"`
			Text string `json:"text"`
		}
		var matches []match
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			haystack := line
			if !args.CaseSensitive {
				haystack = strings.ToLower(line)
			}
			if strings.Contains(haystack, needle) {
				matches = append(matches, match{Line: lineNo, Text: line})
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, tool.NewError(tool.ErrInternal, fmt.Sprintf("scan: %v", err))
		}

		var buf bytes.Buffer
		for _, m := range matches {
			fmt.Fprintf(&buf, "%d:%s\n", m.Line, m.Text)
		}
		return map[string]any{"path": resolved, "match_count": len(matches), "matches": buf.String()}, nil
	})
}
