package plan

// Template is the static, reusable declaration of a multi-step plan.
// Templates are loaded at process start and never mutated; concurrent
// plans bind from the same instance.
type Template struct {
	ID          string     `json:"id"`
	Description string     `json:"description,omitempty"`
	Steps       []StepSpec `json:"steps"`
}

type StepSpec struct {
	ID         string         `json:"step_id"`
	Capability string         `json:"capability"`
	Inputs     map[string]any `json:"inputs,omitempty"`
	DependsOn  []string       `json:"depends_on,omitempty"`
	Optional   bool           `json:"optional,omitempty"`
}

type StepState string

const (
	StatePending   StepState = "PENDING"
	StateRunning   StepState = "RUNNING"
	StateCompleted StepState = "COMPLETED"
	StateFailed    StepState = "FAILED"
	StateSkipped   StepState = "SKIPPED"
)

func (s StepState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSkipped
}

const (
	StatusSuccess        = "SUCCESS"
	StatusPartialFailure = "PARTIAL_FAILURE"
)

type ExecutionResult struct {
	PlanID       string                    `json:"plan_id"`
	Status       string                    `json:"status"`
	Context      map[string]map[string]any `json:"context"`
	FailedSteps  []string                  `json:"failed_steps"`
	SkippedSteps []string                  `json:"skipped_steps"`
	StepErrors   map[string]string         `json:"step_errors,omitempty"`
}

// Plan is one concrete, in-flight instantiation of a template. Created
// per submit call and discarded once the result is returned.
type Plan struct {
	ID       string
	Template *Template

	inputs   map[string]any
	bindings map[string]map[string]Binding
	states   map[string]StepState
}

func (p *Plan) State(stepID string) StepState {
	return p.states[stepID]
}
