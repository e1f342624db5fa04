package plan

import (
	"context"
	"fmt"
	"sort"

	"github.com/rockmrack/crownsafe/internal/capability"
	"github.com/rockmrack/crownsafe/internal/notify"
	"go.uber.org/zap"
)

// Service is the workflow submission entry point the API layer calls
// into: bind a template to caller inputs, run it, return the result.
type Service struct {
	templates map[string]*Template
	registry  *capability.Registry
	executor  *Executor
	notifier  *notify.Notifier
	logger    *zap.Logger
}

func NewService(templates []Template, registry *capability.Registry, executor *Executor, notifier *notify.Notifier, logger *zap.Logger) (*Service, error) {
	byID := make(map[string]*Template, len(templates))
	for i := range templates {
		tpl := templates[i]
		if _, dup := byID[tpl.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", tpl.ID)
		}
		byID[tpl.ID] = &tpl
	}
	return &Service{
		templates: byID,
		registry:  registry,
		executor:  executor,
		notifier:  notifier,
		logger:    logger,
	}, nil
}

// Submit binds and runs a template. Structural bind errors come back
// as an error; anything that happens after the plan starts is reported
// through the ExecutionResult, never as an error.
func (s *Service) Submit(ctx context.Context, templateID string, inputs map[string]any) (ExecutionResult, error) {
	tpl, ok := s.templates[templateID]
	if !ok {
		return ExecutionResult{}, &BindError{TemplateID: templateID, Reason: "unknown template"}
	}

	p, err := Bind(tpl, inputs, s.registry)
	if err != nil {
		return ExecutionResult{}, err
	}

	s.logger.Info("plan submitted",
		zap.String("plan_id", p.ID),
		zap.String("template_id", templateID),
		zap.Int("steps", len(tpl.Steps)),
	)
	result := s.executor.Run(ctx, p)

	s.notifier.Event("plan.finished", map[string]any{
		"plan_id":     p.ID,
		"template_id": templateID,
		"status":      result.Status,
	})
	return result, nil
}

func (s *Service) Templates() []Template {
	out := make([]Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		out = append(out, *tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
