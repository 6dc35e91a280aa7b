// Package tool defines the data model and interfaces for the units of
// work an LLM can ask forge to execute: named, schema-described tools
// invoked with concrete argument maps.
package tool

import (
	"context"
	"time"
)

// ParamType is the structural type of a tool parameter. It mirrors the
// primitive names of JSON Schema so Registry.Describe can be handed
// straight to an LLM's function-calling surface.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// ParameterSpec describes one argument a tool accepts.
type ParameterSpec struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
}

// Definition is the immutable, registered shape of a tool: its name,
// description, category, and ordered parameter list. Definitions are
// never mutated after Registry.Register returns.
type Definition struct {
	Name        string
	Description string
	Category    string
	Parameters  []ParameterSpec
}

// ParamByName returns the parameter spec with the given name, if any.
func (d Definition) ParamByName(name string) (ParameterSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Priority is a scheduling band. Higher values are scheduled first; see
// pkg/orchestrator for the queueing contract.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityBackground:
		return "BACKGROUND"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Invocation is a single request to run a named tool with concrete
// arguments under a priority band, optionally bounded by a timeout.
type Invocation struct {
	Tool      string
	Args      map[string]any
	Priority  Priority
	TaskID    string
	Submitted time.Time
	Timeout   time.Duration
}

// ErrorType enumerates the failure taxonomy carried in
// Result.Metadata["error_type"]. See spec.md §7 for recovery semantics
// per type.
type ErrorType string

const (
	ErrValidation    ErrorType = "VALIDATION"
	ErrPermission    ErrorType = "PERMISSION"
	ErrFileNotFound  ErrorType = "FILE_NOT_FOUND"
	ErrTimeout       ErrorType = "TIMEOUT"
	ErrResource      ErrorType = "RESOURCE"
	ErrNetwork       ErrorType = "NETWORK"
	ErrSecurity      ErrorType = "SECURITY"
	ErrInternal      ErrorType = "INTERNAL"
	ErrDependency    ErrorType = "DEPENDENCY_FAILED"
	ErrCancelled     ErrorType = "CANCELLED"
)

// Result is the outcome of a tool invocation.
type Result struct {
	Success  bool
	Output   string
	Error    string
	Metadata map[string]any
}

// WithErrorType stamps Metadata["error_type"] and returns the result for
// chaining.
func (r *Result) WithErrorType(t ErrorType) *Result {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata["error_type"] = string(t)
	return r
}

// ErrorType reads back the stamped error type, if any.
func (r *Result) ErrorType() (ErrorType, bool) {
	if r.Metadata == nil {
		return "", false
	}
	v, ok := r.Metadata["error_type"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return ErrorType(s), ok
}

// Failure builds a failed Result carrying an error type and message.
func Failure(errType ErrorType, message string) *Result {
	return (&Result{Success: false, Error: message}).WithErrorType(errType)
}

// SuccessResult builds a successful Result with the given output text.
func SuccessResult(output string) *Result {
	return &Result{Success: true, Output: output}
}

// TypedError lets a tool body's returned error carry an explicit
// ErrorType through to functiontool.Build, instead of every failure
// collapsing to ErrInternal once it crosses the `error` boundary. Safety
// rejections (Sanitizer, PathValidator) and other classifiable failures
// should return one of these rather than a bare fmt.Errorf.
type TypedError struct {
	Type    ErrorType
	Message string
}

func (e *TypedError) Error() string { return e.Message }

// NewError builds a TypedError.
func NewError(t ErrorType, message string) *TypedError {
	return &TypedError{Type: t, Message: message}
}

// Implementation is the executable body of a registered tool. Args have
// already passed Registry.Validate by the time Execute is called. The
// context carries cancellation for per-task timeouts (§5); tools that
// spawn a child process should derive their exec context from it.
type Implementation func(ctx context.Context, args map[string]any) (*Result, error)
