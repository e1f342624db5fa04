package plan

import (
	"context"
	"testing"

	"github.com/rockmrack/crownsafe/internal/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServiceSubmitUnknownTemplate(t *testing.T) {
	reg := testRegistry(t)
	svc, err := NewService(nil, reg, NewExecutor(reg, zap.NewNop(), ExecutorOptions{}), nil, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "ghost", nil)
	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "ghost", bindErr.TemplateID)
}

func TestServiceSubmitRunsTemplate(t *testing.T) {
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register("echo", capability.ProviderFunc(
		func(_ context.Context, input map[string]any) (map[string]any, error) {
			return input, nil
		})))
	reg.Freeze()

	templates := []Template{{
		ID: "echo_plan",
		Steps: []StepSpec{{
			ID:         "only",
			Capability: "echo",
			Inputs:     map[string]any{"upc": "{{inputs.upc}}"},
		}},
	}}
	svc, err := NewService(templates, reg, NewExecutor(reg, zap.NewNop(), ExecutorOptions{}), nil, zap.NewNop())
	require.NoError(t, err)

	result, err := svc.Submit(context.Background(), "echo_plan", map[string]any{"upc": "036000291452"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.NotEmpty(t, result.PlanID)
	assert.Equal(t, "036000291452", result.Context["only"]["upc"])
}

func TestServiceRejectsDuplicateTemplateIDs(t *testing.T) {
	reg := testRegistry(t)
	templates := []Template{
		{ID: "dup", Steps: []StepSpec{{ID: "a", Capability: "c"}}},
		{ID: "dup", Steps: []StepSpec{{ID: "a", Capability: "c"}}},
	}
	_, err := NewService(templates, reg, NewExecutor(reg, zap.NewNop(), ExecutorOptions{}), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestServiceTemplatesSorted(t *testing.T) {
	reg := testRegistry(t)
	templates := []Template{
		{ID: "zeta", Steps: []StepSpec{{ID: "a", Capability: "c"}}},
		{ID: "alpha", Steps: []StepSpec{{ID: "a", Capability: "c"}}},
	}
	svc, err := NewService(templates, reg, NewExecutor(reg, zap.NewNop(), ExecutorOptions{}), nil, zap.NewNop())
	require.NoError(t, err)

	out := svc.Templates()
	require.Len(t, out, 2)
	assert.Equal(t, "alpha", out[0].ID)
	assert.Equal(t, "zeta", out[1].ID)
}
