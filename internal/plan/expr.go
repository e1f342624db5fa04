package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// inputsSource is the reserved reference root exposing the caller's
// initial inputs, e.g. {{inputs.product_upc}}.
const inputsSource = "inputs"

// Binding is a parsed input binding: either a literal or an ordered
// fallback chain of references and literals. Parsed once at bind time,
// evaluated lazily when the consuming step is ready to run.
type Binding struct {
	operands []operand
}

type operand struct {
	ref     *Ref
	literal any
}

// Ref addresses a value inside a completed step's output (or the
// initial inputs): stepX.result.field or inputs.field.
type Ref struct {
	Step string
	Path []string
}

// ParseBinding turns a raw template input value into a Binding.
// Strings wrapped in {{ }} are expressions; everything else is a
// literal.
func ParseBinding(raw any) (Binding, error) {
	s, ok := raw.(string)
	if !ok {
		return Binding{operands: []operand{{literal: raw}}}, nil
	}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return Binding{operands: []operand{{literal: s}}}, nil
	}

	inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	if inner == "" {
		return Binding{}, fmt.Errorf("empty expression")
	}

	var operands []operand
	for _, token := range strings.Split(inner, " or ") {
		token = strings.TrimSpace(token)
		if token == "" {
			return Binding{}, fmt.Errorf("empty operand in fallback chain")
		}
		op, err := parseOperand(token)
		if err != nil {
			return Binding{}, err
		}
		operands = append(operands, op)
	}
	return Binding{operands: operands}, nil
}

func parseOperand(token string) (operand, error) {
	if strings.HasPrefix(token, `"`) || strings.HasPrefix(token, `'`) {
		return operand{literal: strings.Trim(token, `"'`)}, nil
	}
	if !strings.Contains(token, ".") {
		// Bare words resolve as typed literals where possible.
		switch token {
		case "true":
			return operand{literal: true}, nil
		case "false":
			return operand{literal: false}, nil
		case "null":
			return operand{literal: nil}, nil
		}
		if n, err := strconv.ParseFloat(token, 64); err == nil {
			return operand{literal: n}, nil
		}
		return operand{literal: token}, nil
	}

	parts := strings.Split(token, ".")
	if parts[0] == inputsSource {
		return operand{ref: &Ref{Step: inputsSource, Path: parts[1:]}}, nil
	}
	if len(parts) < 2 || parts[1] != "result" {
		return operand{}, fmt.Errorf("reference %q: want <step>.result.<field> or inputs.<field>", token)
	}
	return operand{ref: &Ref{Step: parts[0], Path: parts[2:]}}, nil
}

// Steps returns the step ids this binding references, for bind-time
// validation. The inputs pseudo-source is excluded.
func (b Binding) Steps() []string {
	var out []string
	for _, op := range b.operands {
		if op.ref != nil && op.ref.Step != inputsSource {
			out = append(out, op.ref.Step)
		}
	}
	return out
}

// resolver is the accumulated execution context a binding evaluates
// against: results of completed steps plus the initial inputs. It is
// read-only while a wave of steps is in flight.
type resolver struct {
	inputs  map[string]any
	outputs map[string]map[string]any
	states  map[string]StepState
}

// Resolve walks the fallback chain left to right and returns the first
// operand with a non-null value. Referencing a step that is FAILED or
// SKIPPED makes that operand unresolvable; the chain moves on.
func (b Binding) Resolve(rc resolver) (any, error) {
	var lastReason string
	for _, op := range b.operands {
		if op.ref == nil {
			return op.literal, nil
		}
		value, reason := op.ref.resolve(rc)
		if reason == "" && value != nil {
			return value, nil
		}
		if reason == "" {
			reason = fmt.Sprintf("%s resolved to null", op.ref)
		}
		lastReason = reason
	}
	return nil, fmt.Errorf("no operand resolved: %s", lastReason)
}

func (r *Ref) resolve(rc resolver) (any, string) {
	if r.Step == inputsSource {
		return walkPath(anyMap(rc.inputs), r.Path), ""
	}
	if rc.states[r.Step] != StateCompleted {
		return nil, fmt.Sprintf("step %s is %s", r.Step, rc.states[r.Step])
	}
	return walkPath(anyMap(rc.outputs[r.Step]), r.Path), ""
}

func (r *Ref) String() string {
	if r.Step == inputsSource {
		return strings.Join(append([]string{inputsSource}, r.Path...), ".")
	}
	return strings.Join(append([]string{r.Step, "result"}, r.Path...), ".")
}

func anyMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

func walkPath(value any, path []string) any {
	for _, seg := range path {
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value = m[seg]
	}
	return value
}
