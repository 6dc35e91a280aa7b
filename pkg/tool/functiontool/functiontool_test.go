package functiontool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/forge/pkg/tool"
)

type orderedArgs struct {
	Zebra string `json:"zebra" jsonschema:"required,description=first declared"`
	Alpha int    `json:"alpha" jsonschema:"description=second declared"`
	Mid   bool   `json:"mid" jsonschema:"description=third declared"`
	Bravo string `json:"bravo,omitempty" jsonschema:"description=fourth declared"`
}

func TestBuildParametersMatchDeclarationOrder(t *testing.T) {
	def, _, err := Build(Config{Name: "ordered_tool", Description: "test"},
		func(ctx context.Context, args orderedArgs) (map[string]any, error) {
			return map[string]any{}, nil
		})
	require.NoError(t, err)

	names := make([]string, len(def.Parameters))
	for i, p := range def.Parameters {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"zebra", "alpha", "mid", "bravo"}, names)

	require.Len(t, def.Parameters, 4)
	assert.True(t, def.Parameters[0].Required)
	assert.False(t, def.Parameters[1].Required)
}

func TestBuildParametersOrderIsStableAcrossCalls(t *testing.T) {
	var last []string
	for i := 0; i < 5; i++ {
		def, _, err := Build(Config{Name: "ordered_tool", Description: "test"},
			func(ctx context.Context, args orderedArgs) (map[string]any, error) {
				return map[string]any{}, nil
			})
		require.NoError(t, err)

		names := make([]string, len(def.Parameters))
		for j, p := range def.Parameters {
			names[j] = p.Name
		}
		if last != nil {
			assert.Equal(t, last, names)
		}
		last = names
	}
}

type typedErrorArgs struct {
	Fail bool `json:"fail"`
}

func TestBuildSurfacesTypedErrorClassification(t *testing.T) {
	_, impl, err := Build(Config{Name: "typed_error_tool", Description: "test"},
		func(ctx context.Context, args typedErrorArgs) (map[string]any, error) {
			if args.Fail {
				return nil, tool.NewError(tool.ErrSecurity, "rejected")
			}
			return map[string]any{"ok": true}, nil
		})
	require.NoError(t, err)

	res, err := impl(context.Background(), map[string]any{"fail": true})
	require.NoError(t, err)
	assert.False(t, res.Success)
	errType, ok := res.ErrorType()
	require.True(t, ok)
	assert.Equal(t, tool.ErrSecurity, errType)
}

func TestBuildFlattensUntypedErrorToInternal(t *testing.T) {
	_, impl, err := Build(Config{Name: "plain_error_tool", Description: "test"},
		func(ctx context.Context, args typedErrorArgs) (map[string]any, error) {
			return nil, assertErr{}
		})
	require.NoError(t, err)

	res, err := impl(context.Background(), map[string]any{"fail": true})
	require.NoError(t, err)
	assert.False(t, res.Success)
	errType, ok := res.ErrorType()
	require.True(t, ok)
	assert.Equal(t, tool.ErrInternal, errType)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
