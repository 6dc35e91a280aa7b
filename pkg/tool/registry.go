package tool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/forge/pkg/logger"
	"github.com/kadirpekel/forge/pkg/registry"
)

// entry pairs an immutable Definition with its executable Implementation.
type entry struct {
	def  Definition
	impl Implementation
}

// Registry holds tool definitions, validates arguments against their
// declared schema, and dispatches to implementations. Registration is
// append-only at startup; it is safe for concurrent use thereafter and is
// shared read-only by the Orchestrator's worker pool.
type Registry struct {
	items registry.Registry[entry]
	log   *slog.Logger
}

// NewRegistry creates an empty tool Registry.
func NewRegistry() *Registry {
	return &Registry{items: registry.New[entry](), log: logger.Default()}
}

// Register adds a tool definition and its implementation. Duplicate names
// are a programming error: in release builds the existing registration
// wins and a warning is logged, matching hector's append-only registry
// discipline of never silently replacing a live capability.
func (r *Registry) Register(def Definition, impl Implementation) error {
	if def.Name == "" {
		return fmt.Errorf("tool registry: definition missing a name")
	}
	if impl == nil {
		return fmt.Errorf("tool registry: %q has no implementation", def.Name)
	}
	if err := r.items.Register(def.Name, entry{def: def, impl: impl}); err != nil {
		r.log.Warn("tool already registered, keeping existing", slog.String("tool", def.Name))
		return err
	}
	return nil
}

// Lookup returns a tool's definition and implementation by name.
func (r *Registry) Lookup(name string) (Definition, Implementation, bool) {
	e, ok := r.items.Get(name)
	if !ok {
		return Definition{}, nil, false
	}
	return e.def, e.impl, true
}

// List returns every registered tool definition.
func (r *Registry) List() []Definition {
	entries := r.items.List()
	defs := make([]Definition, 0, len(entries))
	for _, e := range entries {
		defs = append(defs, e.def)
	}
	return defs
}

// Describe renders every registered tool as the JSON-Schema
// function-calling descriptor spec.md §6 requires forge to hand the LLM
// transport: {type: "function", function: {name, description, parameters}}.
func (r *Registry) Describe() []map[string]any {
	defs := r.List()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, map[string]any{
			"type":     "function",
			"function": describeFunction(d),
		})
	}
	return out
}

func describeFunction(d Definition) map[string]any {
	properties := map[string]any{}
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"parameters": map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// ValidationError reports why Validate rejected an argument map.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for tool %q: %s", e.Tool, e.Reason)
}

// Validate verifies args against a tool's declared schema: every required
// parameter present, every present parameter's runtime type matching its
// declared type (structurally: number accepts int or float, array
// requires an ordered-sequence shape, object requires a string-keyed
// map), and no unknown parameters. It never panics or returns an ambient
// error type — callers get a *ValidationError or nil.
func (r *Registry) Validate(name string, args map[string]any) error {
	def, _, ok := r.Lookup(name)
	if !ok {
		return &ValidationError{Tool: name, Reason: "unknown tool"}
	}

	declared := make(map[string]ParameterSpec, len(def.Parameters))
	for _, p := range def.Parameters {
		declared[p.Name] = p
	}

	for argName := range args {
		if _, ok := declared[argName]; !ok {
			return &ValidationError{Tool: name, Reason: fmt.Sprintf("unknown parameter %q", argName)}
		}
	}

	for _, p := range def.Parameters {
		val, present := args[p.Name]
		if !present {
			if p.Required {
				return &ValidationError{Tool: name, Reason: fmt.Sprintf("missing required parameter %q", p.Name)}
			}
			continue
		}
		if !typeMatches(p.Type, val) {
			return &ValidationError{Tool: name, Reason: fmt.Sprintf("parameter %q expected %s, got %T", p.Name, p.Type, val)}
		}
	}
	return nil
}

func typeMatches(want ParamType, val any) bool {
	switch want {
	case TypeString:
		_, ok := val.(string)
		return ok
	case TypeNumber:
		switch val.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case TypeBoolean:
		_, ok := val.(bool)
		return ok
	case TypeArray:
		switch val.(type) {
		case []any, []string, []int, []float64:
			return true
		default:
			return false
		}
	case TypeObject:
		_, ok := val.(map[string]any)
		return ok
	default:
		return false
	}
}

// MaterializeDefaults returns a copy of args with every declared
// parameter's default value filled in where the caller omitted it. Used
// by the Stream Pipeline to canonicalize cache keys (spec.md §9 Open
// Question 1).
func (r *Registry) MaterializeDefaults(name string, args map[string]any) map[string]any {
	def, _, ok := r.Lookup(name)
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if !ok {
		return out
	}
	for _, p := range def.Parameters {
		if _, present := out[p.Name]; !present && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// Execute runs a tool's implementation after validating args, never
// letting an implementation panic escape as an ambient error to the
// Orchestrator.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result *Result, err error) {
	if verr := r.Validate(name, args); verr != nil {
		return Failure(ErrValidation, verr.Error()), nil
	}
	_, impl, _ := r.Lookup(name)

	defer func() {
		if rec := recover(); rec != nil {
			result = Failure(ErrInternal, fmt.Sprintf("tool %q panicked: %v", name, rec))
			err = nil
		}
	}()

	return impl(ctx, args)
}
