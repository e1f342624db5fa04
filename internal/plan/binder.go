package plan

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rockmrack/crownsafe/internal/capability"
)

// Bind resolves a template plus caller inputs into a validated
// execution plan. Structural problems (cycles, unknown dependencies,
// unregistered capabilities, malformed binding expressions) are
// *BindError; no step of a plan that failed to bind ever runs.
//
// References to other steps' outputs are deliberately left unresolved;
// the executor evaluates them lazily as steps complete.
func Bind(tpl *Template, inputs map[string]any, reg *capability.Registry) (*Plan, error) {
	if tpl == nil || len(tpl.Steps) == 0 {
		return nil, &BindError{TemplateID: templateID(tpl), Reason: "template has no steps"}
	}

	byID := make(map[string]StepSpec, len(tpl.Steps))
	for _, step := range tpl.Steps {
		if step.ID == "" {
			return nil, &BindError{TemplateID: tpl.ID, Reason: "step with empty step_id"}
		}
		if _, dup := byID[step.ID]; dup {
			return nil, &BindError{TemplateID: tpl.ID, Reason: fmt.Sprintf("duplicate step_id %q", step.ID)}
		}
		byID[step.ID] = step
	}

	for _, step := range tpl.Steps {
		if !reg.Has(step.Capability) {
			return nil, &BindError{
				TemplateID: tpl.ID,
				Reason:     fmt.Sprintf("step %q requires unregistered capability %q", step.ID, step.Capability),
			}
		}
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				return nil, &BindError{TemplateID: tpl.ID, Reason: fmt.Sprintf("step %q depends on itself", step.ID)}
			}
			if _, ok := byID[dep]; !ok {
				return nil, &BindError{
					TemplateID: tpl.ID,
					Reason:     fmt.Sprintf("step %q depends on unknown step %q", step.ID, dep),
				}
			}
		}
	}

	if cycle := findCycle(tpl.Steps); cycle != "" {
		return nil, &BindError{TemplateID: tpl.ID, Reason: "dependency cycle involving " + cycle}
	}

	bindings := make(map[string]map[string]Binding, len(tpl.Steps))
	states := make(map[string]StepState, len(tpl.Steps))
	for _, step := range tpl.Steps {
		parsed := make(map[string]Binding, len(step.Inputs))
		for param, raw := range step.Inputs {
			binding, err := ParseBinding(raw)
			if err != nil {
				return nil, &BindError{
					TemplateID: tpl.ID,
					Reason:     fmt.Sprintf("step %q input %q: %v", step.ID, param, err),
				}
			}
			for _, referenced := range binding.Steps() {
				if _, ok := byID[referenced]; !ok {
					return nil, &BindError{
						TemplateID: tpl.ID,
						Reason:     fmt.Sprintf("step %q input %q references unknown step %q", step.ID, param, referenced),
					}
				}
			}
			parsed[param] = binding
		}
		bindings[step.ID] = parsed
		states[step.ID] = StatePending
	}

	if inputs == nil {
		inputs = map[string]any{}
	}
	return &Plan{
		ID:       uuid.NewString(),
		Template: tpl,
		inputs:   inputs,
		bindings: bindings,
		states:   states,
	}, nil
}

// findCycle runs Kahn's algorithm over the dependency edges and names
// one node left unprocessed when a cycle exists.
func findCycle(steps []StepSpec) string {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, step := range steps {
		indegree[step.ID] += 0
		for _, dep := range step.DependsOn {
			indegree[step.ID]++
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	var queue []string
	for _, step := range steps {
		if indegree[step.ID] == 0 {
			queue = append(queue, step.ID)
		}
	}
	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed == len(steps) {
		return ""
	}
	for _, step := range steps {
		if indegree[step.ID] > 0 {
			return fmt.Sprintf("%q", step.ID)
		}
	}
	return "unknown step"
}

func templateID(tpl *Template) string {
	if tpl == nil {
		return ""
	}
	return tpl.ID
}
