package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBindingLiterals(t *testing.T) {
	b, err := ParseBinding(42)
	require.NoError(t, err)
	v, err := b.Resolve(resolver{})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	b, err = ParseBinding("plain string")
	require.NoError(t, err)
	v, err = b.Resolve(resolver{})
	require.NoError(t, err)
	assert.Equal(t, "plain string", v)
}

func TestParseBindingRejectsBadReference(t *testing.T) {
	_, err := ParseBinding("{{stepA.output.x}}")
	assert.Error(t, err)

	_, err = ParseBinding("{{}}")
	assert.Error(t, err)
}

func TestResolveStepReference(t *testing.T) {
	b, err := ParseBinding("{{stepA.result.count}}")
	require.NoError(t, err)

	rc := resolver{
		outputs: map[string]map[string]any{"stepA": {"count": 7}},
		states:  map[string]StepState{"stepA": StateCompleted},
	}
	v, err := b.Resolve(rc)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestResolveNestedPath(t *testing.T) {
	b, err := ParseBinding("{{stepA.result.report.total}}")
	require.NoError(t, err)

	rc := resolver{
		outputs: map[string]map[string]any{
			"stepA": {"report": map[string]any{"total": 3}},
		},
		states: map[string]StepState{"stepA": StateCompleted},
	}
	v, err := b.Resolve(rc)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestResolveInputs(t *testing.T) {
	b, err := ParseBinding("{{inputs.upc}}")
	require.NoError(t, err)

	v, err := b.Resolve(resolver{inputs: map[string]any{"upc": "036000291452"}})
	require.NoError(t, err)
	assert.Equal(t, "036000291452", v)
}

func TestFallbackChainSkipsFailedStep(t *testing.T) {
	b, err := ParseBinding("{{stepA.result.x or stepB.result.x}}")
	require.NoError(t, err)

	rc := resolver{
		outputs: map[string]map[string]any{"stepB": {"x": "from-b"}},
		states: map[string]StepState{
			"stepA": StateSkipped,
			"stepB": StateCompleted,
		},
	}
	v, err := b.Resolve(rc)
	require.NoError(t, err)
	assert.Equal(t, "from-b", v)
}

func TestFallbackChainSkipsNullValue(t *testing.T) {
	b, err := ParseBinding("{{stepA.result.x or stepB.result.x}}")
	require.NoError(t, err)

	rc := resolver{
		outputs: map[string]map[string]any{
			"stepA": {"x": nil},
			"stepB": {"x": "from-b"},
		},
		states: map[string]StepState{
			"stepA": StateCompleted,
			"stepB": StateCompleted,
		},
	}
	v, err := b.Resolve(rc)
	require.NoError(t, err)
	assert.Equal(t, "from-b", v)
}

func TestFallbackLiteralOperands(t *testing.T) {
	b, err := ParseBinding(`{{stepA.result.x or "default"}}`)
	require.NoError(t, err)

	rc := resolver{states: map[string]StepState{"stepA": StateFailed}}
	v, err := b.Resolve(rc)
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	b, err = ParseBinding("{{stepA.result.x or 10}}")
	require.NoError(t, err)
	v, err = b.Resolve(rc)
	require.NoError(t, err)
	assert.Equal(t, float64(10), v)
}

func TestUnresolvableChainErrors(t *testing.T) {
	b, err := ParseBinding("{{stepA.result.x or stepB.result.x}}")
	require.NoError(t, err)

	rc := resolver{states: map[string]StepState{
		"stepA": StateFailed,
		"stepB": StateSkipped,
	}}
	_, err = b.Resolve(rc)
	assert.Error(t, err)
}

func TestBindingSteps(t *testing.T) {
	b, err := ParseBinding("{{stepA.result.x or inputs.x or stepB.result.y}}")
	require.NoError(t, err)
	assert.Equal(t, []string{"stepA", "stepB"}, b.Steps())
}
