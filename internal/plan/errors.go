package plan

import "fmt"

// BindError is a structural template problem: the plan is never
// constructed and no step runs. Surfaced synchronously by Submit.
type BindError struct {
	TemplateID string
	Reason     string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %s", e.TemplateID, e.Reason)
}

// BindingResolutionError means a step's required input reference could
// not be resolved; the step is skipped, the plan continues.
type BindingResolutionError struct {
	StepID string
	Param  string
	Reason string
}

func (e *BindingResolutionError) Error() string {
	return fmt.Sprintf("step %s: input %q unresolvable: %s", e.StepID, e.Param, e.Reason)
}

// StepExecutionError wraps a provider failure; the step fails, its
// non-optional dependents are skipped.
type StepExecutionError struct {
	StepID string
	Err    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.StepID, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}
