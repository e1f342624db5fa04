package plan

import (
	"time"

	"github.com/rockmrack/crownsafe/internal/capability"
	"github.com/rockmrack/crownsafe/internal/config"
	"github.com/rockmrack/crownsafe/internal/notify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewExecutorFromConfig),
		fx.Provide(NewServiceFromConfig),
	)
}

func NewExecutorFromConfig(registry *capability.Registry, cfg config.Config, logger *zap.Logger) *Executor {
	return NewExecutor(registry, logger, ExecutorOptions{
		StepTimeout:      config.Duration(cfg.Plan.StepTimeout, 30*time.Second),
		MaxParallelSteps: cfg.Plan.MaxParallelSteps,
	})
}

func NewServiceFromConfig(registry *capability.Registry, executor *Executor, notifier *notify.Notifier, cfg config.Config, logger *zap.Logger) (*Service, error) {
	templates := append([]Template(nil), BuiltinTemplates...)
	loaded, err := LoadDir(cfg.Plan.TemplateDir)
	if err != nil {
		return nil, err
	}
	templates = append(templates, loaded...)
	logger.Info("templates loaded", zap.Int("count", len(templates)))
	return NewService(templates, registry, executor, notifier, logger)
}
