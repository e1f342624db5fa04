package recall

import (
	"github.com/rockmrack/crownsafe/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Provide(NewStore)
}

func NewStore(cfg config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		logger.Info("using postgres record store")
		return NewPGStore(cfg.Store.DSN, cfg.Store.OverwriteFetchedAt)
	default:
		logger.Info("using in-memory record store")
		return NewMemoryStore(cfg.Store.OverwriteFetchedAt), nil
	}
}
