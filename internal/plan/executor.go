package plan

import (
	"context"
	"time"

	"github.com/rockmrack/crownsafe/internal/capability"
	"github.com/rockmrack/crownsafe/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ExecutorOptions struct {
	StepTimeout      time.Duration
	MaxParallelSteps int
}

// Executor runs a bound plan: it advances the DAG frontier wave by
// wave, dispatches ready steps concurrently through the capability
// registry, and barriers before computing the next frontier.
type Executor struct {
	registry *capability.Registry
	logger   *zap.Logger
	opts     ExecutorOptions
}

func NewExecutor(registry *capability.Registry, logger *zap.Logger, opts ExecutorOptions) *Executor {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 30 * time.Second
	}
	if opts.MaxParallelSteps <= 0 {
		opts.MaxParallelSteps = 4
	}
	return &Executor{registry: registry, logger: logger, opts: opts}
}

type stepOutcome struct {
	stepID string
	state  StepState
	output map[string]any
	err    error
}

// Run executes the plan to completion. It never returns an error for
// step failures: partial failure is communicated through the result's
// status and failed/skipped lists. Cancellation of ctx stops in-flight
// steps; already-completed work stays in the context.
func (e *Executor) Run(ctx context.Context, p *Plan) ExecutionResult {
	ctx, span := otel.Tracer("crownsafe/plan").Start(ctx, "plan.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("plan.id", p.ID),
		attribute.String("plan.template", p.Template.ID),
	)

	outputs := map[string]map[string]any{}
	stepErrs := map[string]string{}

	for {
		wave := e.nextWave(p, stepErrs)
		if len(wave) == 0 {
			break
		}

		// Mark the whole wave RUNNING before launching anything so the
		// states map is not written while workers read it.
		for _, step := range wave {
			p.states[step.ID] = StateRunning
		}
		rc := resolver{inputs: p.inputs, outputs: outputs, states: p.states}

		outcomes := make([]stepOutcome, len(wave))
		g, groupCtx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.MaxParallelSteps)
		for i, step := range wave {
			g.Go(func() error {
				outcomes[i] = e.runStep(groupCtx, p, step, rc)
				return nil
			})
		}
		// Barrier: every step in the ready set finishes before any
		// dependent becomes eligible.
		_ = g.Wait()

		for _, outcome := range outcomes {
			p.states[outcome.stepID] = outcome.state
			if outcome.state == StateCompleted {
				outputs[outcome.stepID] = outcome.output
			}
			if outcome.err != nil {
				stepErrs[outcome.stepID] = outcome.err.Error()
			}
		}
	}

	// Whatever is still pending is permanently blocked by failed or
	// skipped ancestors.
	for _, step := range p.Template.Steps {
		if p.states[step.ID] == StatePending {
			p.states[step.ID] = StateSkipped
			stepErrs[step.ID] = "blocked by failed or skipped dependencies"
		}
	}

	return e.buildResult(p, outputs, stepErrs, span)
}

// nextWave returns the pending steps whose dependencies are all
// terminal. Steps whose dependencies did not all complete are skipped
// in place unless marked optional; optional steps still run and lean
// on their fallback bindings.
func (e *Executor) nextWave(p *Plan, stepErrs map[string]string) []StepSpec {
	var wave []StepSpec
	progress := true
	for progress {
		progress = false
		wave = wave[:0]
		for _, step := range p.Template.Steps {
			if p.states[step.ID] != StatePending {
				continue
			}
			allTerminal := true
			allCompleted := true
			for _, dep := range step.DependsOn {
				state := p.states[dep]
				if !state.Terminal() {
					allTerminal = false
					break
				}
				if state != StateCompleted {
					allCompleted = false
				}
			}
			if !allTerminal {
				continue
			}
			if !allCompleted && !step.Optional {
				p.states[step.ID] = StateSkipped
				stepErrs[step.ID] = "dependency failed or skipped"
				metrics.RecordStepOutcome(string(StateSkipped))
				e.logger.Info("step skipped",
					zap.String("plan_id", p.ID),
					zap.String("step_id", step.ID),
					zap.String("reason", "dependency failed or skipped"),
				)
				// A skip is terminal and may unblock (or skip) others.
				progress = true
				continue
			}
			wave = append(wave, step)
		}
	}
	return wave
}

func (e *Executor) runStep(ctx context.Context, p *Plan, step StepSpec, rc resolver) stepOutcome {
	ctx, span := otel.Tracer("crownsafe/plan").Start(ctx, "plan.step")
	defer span.End()
	span.SetAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.capability", step.Capability),
	)

	input := map[string]any{}
	for param, binding := range p.bindings[step.ID] {
		value, err := binding.Resolve(rc)
		if err != nil {
			resolveErr := &BindingResolutionError{StepID: step.ID, Param: param, Reason: err.Error()}
			e.logger.Warn("step skipped: unresolvable input",
				zap.String("plan_id", p.ID),
				zap.String("step_id", step.ID),
				zap.String("param", param),
				zap.Error(err),
			)
			metrics.RecordStepOutcome(string(StateSkipped))
			return stepOutcome{stepID: step.ID, state: StateSkipped, err: resolveErr}
		}
		input[param] = value
	}

	provider, err := e.registry.Lookup(step.Capability)
	if err != nil {
		// Bind-time validation makes this unreachable short of a
		// registry mutated after bind; treat as a step failure.
		metrics.RecordStepOutcome(string(StateFailed))
		return stepOutcome{stepID: step.ID, state: StateFailed, err: err}
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.opts.StepTimeout)
	defer cancel()

	started := time.Now()
	output, err := provider.Execute(stepCtx, input)
	if err != nil {
		e.logger.Warn("step failed",
			zap.String("plan_id", p.ID),
			zap.String("step_id", step.ID),
			zap.String("capability", step.Capability),
			zap.Duration("duration", time.Since(started)),
			zap.Error(err),
		)
		metrics.RecordStepOutcome(string(StateFailed))
		return stepOutcome{stepID: step.ID, state: StateFailed, err: &StepExecutionError{StepID: step.ID, Err: err}}
	}
	if output == nil {
		output = map[string]any{}
	}

	e.logger.Info("step completed",
		zap.String("plan_id", p.ID),
		zap.String("step_id", step.ID),
		zap.String("capability", step.Capability),
		zap.Duration("duration", time.Since(started)),
	)
	metrics.RecordStepOutcome(string(StateCompleted))
	return stepOutcome{stepID: step.ID, state: StateCompleted, output: output}
}

func (e *Executor) buildResult(p *Plan, outputs map[string]map[string]any, stepErrs map[string]string, span trace.Span) ExecutionResult {
	result := ExecutionResult{
		PlanID:       p.ID,
		Status:       StatusSuccess,
		Context:      outputs,
		FailedSteps:  []string{},
		SkippedSteps: []string{},
		StepErrors:   stepErrs,
	}
	for _, step := range p.Template.Steps {
		switch p.states[step.ID] {
		case StateFailed:
			result.FailedSteps = append(result.FailedSteps, step.ID)
		case StateSkipped:
			result.SkippedSteps = append(result.SkippedSteps, step.ID)
		}
	}
	if len(result.FailedSteps) > 0 || len(result.SkippedSteps) > 0 {
		result.Status = StatusPartialFailure
	}
	span.SetAttributes(attribute.String("plan.status", result.Status))
	metrics.RecordPlanOutcome(result.Status)

	if result.Status != StatusSuccess {
		e.logger.Info("plan finished with partial failure",
			zap.String("plan_id", p.ID),
			zap.Strings("failed", result.FailedSteps),
			zap.Strings("skipped", result.SkippedSteps),
		)
	}
	return result
}
