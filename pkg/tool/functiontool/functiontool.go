// Package functiontool builds forge tool.Definitions and tool.Implementations
// from typed Go argument structs, the same convenience hector's own
// functiontool package provides over its CallableTool interface: declare
// an Args struct with json/jsonschema tags once, get a registry-ready
// Definition and an Implementation wrapper that decodes the generic
// map[string]any into Args before calling your typed function.
package functiontool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/forge/pkg/tool"
)

// Config names and describes the tool being built.
type Config struct {
	Name        string
	Category    string
	Description string
}

// Build generates a Definition (via reflection over Args' json/jsonschema
// struct tags) and an Implementation that fills in declared defaults for
// omitted args, decodes args into Args, calls fn, and marshals its result
// back into a tool.Result.
func Build[Args any](cfg Config, fn func(ctx context.Context, args Args) (map[string]any, error)) (tool.Definition, tool.Implementation, error) {
	if cfg.Name == "" {
		return tool.Definition{}, nil, fmt.Errorf("functiontool: name is required")
	}
	params, err := reflectParameters[Args]()
	if err != nil {
		return tool.Definition{}, nil, fmt.Errorf("functiontool: %s: %w", cfg.Name, err)
	}

	def := tool.Definition{
		Name:        cfg.Name,
		Description: cfg.Description,
		Category:    cfg.Category,
		Parameters:  params,
	}

	impl := func(ctx context.Context, args map[string]any) (*tool.Result, error) {
		withDefaults := make(map[string]any, len(params))
		for k, v := range args {
			withDefaults[k] = v
		}
		for _, p := range params {
			if _, present := withDefaults[p.Name]; !present && p.Default != nil {
				withDefaults[p.Name] = p.Default
			}
		}

		var typed Args
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName: "json",
			Result:  &typed,
		})
		if err != nil {
			return tool.Failure(tool.ErrInternal, err.Error()), nil
		}
		if err := dec.Decode(withDefaults); err != nil {
			return tool.Failure(tool.ErrValidation, fmt.Sprintf("decoding arguments: %v", err)), nil
		}
		out, err := fn(ctx, typed)
		if err != nil {
			var typedErr *tool.TypedError
			if errors.As(err, &typedErr) {
				return tool.Failure(typedErr.Type, typedErr.Message), nil
			}
			return tool.Failure(tool.ErrInternal, err.Error()), nil
		}
		text, _ := json.Marshal(out)
		return &tool.Result{Success: true, Output: string(text), Metadata: out}, nil
	}

	return def, impl, nil
}

// reflectParameters generates a []tool.ParameterSpec from Args' struct
// tags using the same invopop/jsonschema reflector hector's functiontool
// package uses for its LLM-facing schema.
func reflectParameters[Args any]() ([]tool.ParameterSpec, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(Args))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	// jsonschema.Reflector emits "properties" in struct field declaration
	// order, but that order only survives in the marshaled JSON text: a
	// decode straight into map[string]any loses it, since Go map iteration
	// is randomized. Decode "properties" into a json.RawMessage first so
	// its object-key order is preserved, then walk it token-by-token to
	// recover the order spec.md §3 requires of Definition.Parameters.
	var top struct {
		Properties json.RawMessage `json:"properties"`
		Required   []string        `json:"required"`
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}

	required := map[string]bool{}
	for _, r := range top.Required {
		required[r] = true
	}

	var props map[string]any
	if len(top.Properties) > 0 {
		if err := json.Unmarshal(top.Properties, &props); err != nil {
			return nil, err
		}
	}
	order, err := orderedObjectKeys(top.Properties)
	if err != nil {
		return nil, err
	}

	params := make([]tool.ParameterSpec, 0, len(order))
	for _, name := range order {
		prop, _ := props[name].(map[string]any)
		p := tool.ParameterSpec{
			Name:     name,
			Type:     jsonTypeToParamType(prop["type"]),
			Required: required[name],
		}
		if desc, ok := prop["description"].(string); ok {
			p.Description = desc
		}
		if def, ok := prop["default"]; ok {
			p.Default = def
		}
		params = append(params, p)
	}
	return params, nil
}

// orderedObjectKeys returns a JSON object's top-level keys in the order
// they appear in raw, using the decoder's token stream rather than
// map[string]any (which would discard order on decode).
func orderedObjectKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("functiontool: expected object for properties")
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("functiontool: expected string key in properties")
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func jsonTypeToParamType(v any) tool.ParamType {
	s, _ := v.(string)
	switch s {
	case "integer", "number":
		return tool.TypeNumber
	case "boolean":
		return tool.TypeBoolean
	case "array":
		return tool.TypeArray
	case "object":
		return tool.TypeObject
	default:
		return tool.TypeString
	}
}
