package ingestworker

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rockmrack/crownsafe/internal/config"
	"github.com/rockmrack/crownsafe/internal/connector"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module runs periodic ingestion cycles in the background for
// deployments that do not drive ingestion through plans or an external
// scheduler.
func Module() fx.Option {
	return fx.Invoke(register)
}

func register(lc fx.Lifecycle, fanout *connector.Fanout, cfg config.Config, logger *zap.Logger) {
	if strings.TrimSpace(os.Getenv("APP_INGEST_DISABLED")) != "" {
		logger.Info("ingest worker disabled by environment")
		return
	}
	interval := config.Duration(cfg.Ingest.Interval, time.Hour)

	worker := &worker{
		fanout:   fanout,
		logger:   logger,
		interval: interval,
	}
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, runCancel := context.WithCancel(context.Background())
			cancel = runCancel
			go worker.run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

type worker struct {
	fanout   *connector.Fanout
	logger   *zap.Logger
	interval time.Duration
}

func (w *worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("ingest worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		report, err := w.fanout.RunCycle(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Warn("scheduled ingestion cycle failed", zap.Error(err))
			continue
		}
		w.logger.Info("scheduled ingestion cycle done",
			zap.Int("fetched", report.TotalFetched),
			zap.Int("upserted", report.TotalUpserted),
		)
	}
}
