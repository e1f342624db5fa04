package logging

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewLogger),
		fx.Invoke(func(lc fx.Lifecycle, logger *zap.Logger) {
			lc.Append(fx.Hook{OnStop: func(context.Context) error {
				_ = logger.Sync()
				return nil
			}})
		}),
	)
}

func NewLogger() (*zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return attachCollectorSink(logger.Named("crownsafe")), nil
}
