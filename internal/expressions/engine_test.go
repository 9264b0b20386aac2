package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/botforge/pkg/schema"
)

func TestExprEngineEvaluate(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, `age >= 18 && name != ""`, map[string]any{"age": 21, "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(ctx, `age >= 18`, map[string]any{"age": 12})
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestExprEngineUndefinedVariableIsNil(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), `ghost == nil`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExprEngineCompileError(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), `age >`, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestExprEngineEmptyExpression(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestExprEngineCachesPrograms(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, `age > 1`, map[string]any{"age": 2})
	require.NoError(t, err)
	_, err = e.Evaluate(ctx, `age > 1`, map[string]any{"age": 0})
	require.NoError(t, err)

	assert.Len(t, e.cache, 1)
}

func TestCELEngineEvaluate(t *testing.T) {
	e := NewCELEngine()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, `age >= 18`, map[string]any{"age": 21})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(ctx, `city == "Oslo"`, map[string]any{"city": "Oslo", "age": 1})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCELEngineCompileError(t *testing.T) {
	e := NewCELEngine()

	_, err := e.Evaluate(context.Background(), `age >=`, map[string]any{"age": 1})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestIdentifiers(t *testing.T) {
	names, err := Identifiers(`age >= 18 && name != "" || weather.temp_c > 20`)
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "name", "weather"}, names)
}

func TestIdentifiersExcludesCallees(t *testing.T) {
	names, err := Identifiers(`len(name) > 2`)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, names)
}

func TestIdentifiersParseError(t *testing.T) {
	_, err := Identifiers(`age >`)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestTruthy(t *testing.T) {
	assert.True(t, Truthy(true))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy(1))
	assert.True(t, Truthy(0.5))
	assert.True(t, Truthy(map[string]any{}))

	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy(0.0))
}

func TestGoJQApply(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	input := map[string]any{
		"current": map[string]any{"temp_c": 21.5, "condition": "sunny"},
		"hourly":  []any{1.0, 2.0, 3.0},
	}

	out, err := e.Apply(ctx, ".current.temp_c", input)
	require.NoError(t, err)
	assert.Equal(t, 21.5, out)

	out, err = e.Apply(ctx, ".current", input)
	require.NoError(t, err)
	assert.Equal(t, input["current"], out)

	// Multiple outputs collect into a slice.
	out, err = e.Apply(ctx, ".hourly[]", input)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, out)

	// No output yields nil without error.
	out, err = e.Apply(ctx, ".missing // empty", input)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Apply(context.Background(), ".[bad", nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestGoJQRuntimeError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Apply(context.Background(), ".foo", "not an object")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExpression))
}

func TestGoJQEnvIsBlocked(t *testing.T) {
	t.Setenv("BOTFORGE_SECRET", "hush")
	e := NewGoJQEngine()

	out, err := e.Apply(context.Background(), `$ENV.BOTFORGE_SECRET`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}
