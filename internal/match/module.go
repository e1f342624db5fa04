package match

import (
	"github.com/rockmrack/crownsafe/internal/config"
	"github.com/rockmrack/crownsafe/internal/recall"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Provide(func(store recall.Store, cfg config.Config, logger *zap.Logger) *Engine {
		return NewEngine(store, logger, Options{
			SimilarityFloor: cfg.Match.SimilarityFloor,
			MaxResults:      cfg.Match.MaxResults,
		})
	})
}
