package connector

import (
	"time"

	"github.com/rockmrack/crownsafe/internal/config"
	"github.com/rockmrack/crownsafe/internal/notify"
	"github.com/rockmrack/crownsafe/internal/recall"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewConnectors),
		fx.Provide(NewFanoutFromConfig),
	)
}

// DefaultSources is the agency feed set used when no connectors are
// configured.
func DefaultSources() []config.ConnectorConfig {
	return []config.ConnectorConfig{
		{Agency: "cpsc", BaseURL: "https://www.saferproducts.gov/RestWebServices", Path: "/Recall"},
		{Agency: "fda", BaseURL: "https://api.fda.gov", Path: "/food/enforcement.json"},
		{Agency: "nhtsa", BaseURL: "https://api.nhtsa.gov", Path: "/recalls/recallsByVehicle"},
		{Agency: "fsis", BaseURL: "https://www.fsis.usda.gov", Path: "/fsis/api/recall/v/1"},
		{Agency: "healthcanada", BaseURL: "https://healthycanadians.gc.ca", Path: "/recall-alert-rappel-avis/api/recent/en"},
		{Agency: "eusafetygate", BaseURL: "https://ec.europa.eu", Path: "/safety-gate-alerts/public/api/notification"},
	}
}

func NewConnectors(cfg config.Config, logger *zap.Logger) []Connector {
	sources := cfg.Connectors
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	out := make([]Connector, 0, len(sources))
	for _, cc := range sources {
		if cc.Agency == "" || cc.BaseURL == "" {
			logger.Warn("skipping connector with missing agency or base url", zap.String("agency", cc.Agency))
			continue
		}
		out = append(out, NewHTTPConnector(cc, cfg.Ingest))
	}
	logger.Info("connectors registered", zap.Int("count", len(out)))
	return out
}

func NewFanoutFromConfig(connectors []Connector, store recall.Store, notifier *notify.Notifier, cfg config.Config, logger *zap.Logger) *Fanout {
	return NewFanout(connectors, store, notifier, logger, FanoutOptions{
		BatchSize:     cfg.Store.BatchSize,
		SourceTimeout: config.Duration(cfg.Ingest.SourceTimeout, 30*time.Second),
		SinceWindow:   config.Duration(cfg.Ingest.SinceWindow, 30*24*time.Hour),
		Limit:         cfg.Ingest.FanoutLimit,
	})
}
