package plan

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rockmrack/crownsafe/internal/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// callRecorder tracks the order in which steps run so dependency
// ordering can be asserted after the fact.
type callRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *callRecorder) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
}

func (r *callRecorder) index(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, got := range r.order {
		if got == id {
			return i
		}
	}
	return -1
}

func capFunc(fn func(context.Context, map[string]any) (map[string]any, error)) capability.Provider {
	return capability.ProviderFunc(fn)
}

func registryWith(t *testing.T, providers map[string]capability.Provider) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	for name, p := range providers {
		require.NoError(t, reg.Register(name, p))
	}
	reg.Freeze()
	return reg
}

func TestRunRespectsDependencyOrder(t *testing.T) {
	rec := &callRecorder{}
	providers := map[string]capability.Provider{}
	for _, name := range []string{"a", "b", "c", "d"} {
		providers[name] = capFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
			rec.record(input["self"].(string))
			return map[string]any{"done": true}, nil
		})
	}
	reg := registryWith(t, providers)

	// Diamond: root -> left/right -> sink.
	tpl := &Template{
		ID: "diamond",
		Steps: []StepSpec{
			{ID: "root", Capability: "a", Inputs: map[string]any{"self": "root"}},
			{ID: "left", Capability: "b", DependsOn: []string{"root"}, Inputs: map[string]any{"self": "left"}},
			{ID: "right", Capability: "c", DependsOn: []string{"root"}, Inputs: map[string]any{"self": "right"}},
			{ID: "sink", Capability: "d", DependsOn: []string{"left", "right"}, Inputs: map[string]any{"self": "sink"}},
		},
	}
	p, err := Bind(tpl, nil, reg)
	require.NoError(t, err)

	result := NewExecutor(reg, zap.NewNop(), ExecutorOptions{}).Run(context.Background(), p)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Empty(t, result.FailedSteps)
	assert.Empty(t, result.SkippedSteps)
	require.Len(t, rec.order, 4)
	assert.Less(t, rec.index("root"), rec.index("left"))
	assert.Less(t, rec.index("root"), rec.index("right"))
	assert.Greater(t, rec.index("sink"), rec.index("left"))
	assert.Greater(t, rec.index("sink"), rec.index("right"))
}

func TestRunPassesOutputsBetweenSteps(t *testing.T) {
	reg := registryWith(t, map[string]capability.Provider{
		"produce": capFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return map[string]any{"value": "036000291452"}, nil
		}),
		"consume": capFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"echoed": input["code"]}, nil
		}),
	})
	tpl := &Template{
		ID: "pipe",
		Steps: []StepSpec{
			{ID: "first", Capability: "produce"},
			{ID: "second", Capability: "consume", DependsOn: []string{"first"},
				Inputs: map[string]any{"code": "{{first.result.value}}"}},
		},
	}
	p, err := Bind(tpl, nil, reg)
	require.NoError(t, err)

	result := NewExecutor(reg, zap.NewNop(), ExecutorOptions{}).Run(context.Background(), p)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "036000291452", result.Context["second"]["echoed"])
}

func TestRunSkipsDependentsOfFailedStep(t *testing.T) {
	ran := &callRecorder{}
	reg := registryWith(t, map[string]capability.Provider{
		"boom": capFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("upstream unavailable")
		}),
		"after": capFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			ran.record("after")
			return nil, nil
		}),
	})
	tpl := &Template{
		ID: "chain",
		Steps: []StepSpec{
			{ID: "first", Capability: "boom"},
			{ID: "second", Capability: "after", DependsOn: []string{"first"}},
			{ID: "third", Capability: "after", DependsOn: []string{"second"}},
		},
	}
	p, err := Bind(tpl, nil, reg)
	require.NoError(t, err)

	result := NewExecutor(reg, zap.NewNop(), ExecutorOptions{}).Run(context.Background(), p)

	assert.Equal(t, StatusPartialFailure, result.Status)
	assert.Equal(t, []string{"first"}, result.FailedSteps)
	assert.Equal(t, []string{"second", "third"}, result.SkippedSteps)
	assert.Equal(t, -1, ran.index("after"))
	assert.Contains(t, result.StepErrors["first"], "upstream unavailable")
	assert.NotEmpty(t, result.StepErrors["second"])
}

func TestRunOptionalStepRunsAfterFailedDependency(t *testing.T) {
	reg := registryWith(t, map[string]capability.Provider{
		"boom": capFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("refresh failed")
		}),
		"lookup": capFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"name": input["name"]}, nil
		}),
	})
	tpl := &Template{
		ID: "refresh_then_lookup",
		Steps: []StepSpec{
			{ID: "refresh", Capability: "boom"},
			{ID: "lookup", Capability: "lookup", DependsOn: []string{"refresh"}, Optional: true,
				Inputs: map[string]any{"name": `{{refresh.result.name or inputs.name}}`}},
		},
	}
	p, err := Bind(tpl, map[string]any{"name": "Dream Crib"}, reg)
	require.NoError(t, err)

	result := NewExecutor(reg, zap.NewNop(), ExecutorOptions{}).Run(context.Background(), p)

	assert.Equal(t, StatusPartialFailure, result.Status)
	assert.Equal(t, []string{"refresh"}, result.FailedSteps)
	assert.Empty(t, result.SkippedSteps)
	assert.Equal(t, "Dream Crib", result.Context["lookup"]["name"])
}

func TestRunSkipsStepWithUnresolvableBinding(t *testing.T) {
	reg := registryWith(t, map[string]capability.Provider{
		"boom": capFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("no luck")
		}),
		"lookup": capFunc(func(_ context.Context, input map[string]any) (map[string]any, error) {
			return input, nil
		}),
	})
	// Optional step with no fallback: it runs, fails to resolve, and
	// is skipped rather than failed.
	tpl := &Template{
		ID: "no_fallback",
		Steps: []StepSpec{
			{ID: "refresh", Capability: "boom"},
			{ID: "lookup", Capability: "lookup", DependsOn: []string{"refresh"}, Optional: true,
				Inputs: map[string]any{"x": "{{refresh.result.x}}"}},
		},
	}
	p, err := Bind(tpl, nil, reg)
	require.NoError(t, err)

	result := NewExecutor(reg, zap.NewNop(), ExecutorOptions{}).Run(context.Background(), p)

	assert.Equal(t, StatusPartialFailure, result.Status)
	assert.Equal(t, []string{"lookup"}, result.SkippedSteps)
	assert.NotEmpty(t, result.StepErrors["lookup"])
}

func TestRunNilOutputBecomesEmptyMap(t *testing.T) {
	reg := registryWith(t, map[string]capability.Provider{
		"quiet": capFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, nil
		}),
	})
	tpl := &Template{ID: "quiet", Steps: []StepSpec{{ID: "only", Capability: "quiet"}}}
	p, err := Bind(tpl, nil, reg)
	require.NoError(t, err)

	result := NewExecutor(reg, zap.NewNop(), ExecutorOptions{}).Run(context.Background(), p)

	assert.Equal(t, StatusSuccess, result.Status)
	require.NotNil(t, result.Context["only"])
	assert.Empty(t, result.Context["only"])
}

func TestRunCancellationKeepsCompletedWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registryWith(t, map[string]capability.Provider{
		"produce": capFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			// Cancel while the plan is still mid-flight; the next wave
			// sees a dead context.
			cancel()
			return map[string]any{"done": true}, nil
		}),
		"wait": capFunc(func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	tpl := &Template{
		ID: "cancelled",
		Steps: []StepSpec{
			{ID: "first", Capability: "produce"},
			{ID: "second", Capability: "wait", DependsOn: []string{"first"}},
		},
	}
	p, err := Bind(tpl, nil, reg)
	require.NoError(t, err)

	result := NewExecutor(reg, zap.NewNop(), ExecutorOptions{}).Run(ctx, p)

	assert.Equal(t, StatusPartialFailure, result.Status)
	assert.Equal(t, true, result.Context["first"]["done"])
	assert.Equal(t, []string{"second"}, result.FailedSteps)
	assert.Contains(t, result.StepErrors["second"], context.Canceled.Error())
}

func TestRunIndependentStepsBothRunDespiteOneFailure(t *testing.T) {
	reg := registryWith(t, map[string]capability.Provider{
		"boom": capFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return nil, errors.New("source down")
		}),
		"fine": capFunc(func(_ context.Context, _ map[string]any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		}),
	})
	tpl := &Template{
		ID: "parallel",
		Steps: []StepSpec{
			{ID: "bad", Capability: "boom"},
			{ID: "good", Capability: "fine"},
		},
	}
	p, err := Bind(tpl, nil, reg)
	require.NoError(t, err)

	result := NewExecutor(reg, zap.NewNop(), ExecutorOptions{MaxParallelSteps: 2}).Run(context.Background(), p)

	assert.Equal(t, StatusPartialFailure, result.Status)
	assert.Equal(t, []string{"bad"}, result.FailedSteps)
	assert.Equal(t, true, result.Context["good"]["ok"])
	assert.Equal(t, StateCompleted, p.State("good"))
}
