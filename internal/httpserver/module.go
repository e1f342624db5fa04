package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rockmrack/crownsafe/internal/config"
	"github.com/rockmrack/crownsafe/internal/connector"
	"github.com/rockmrack/crownsafe/internal/match"
	"github.com/rockmrack/crownsafe/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.Config
	logger *zap.Logger
	srv    *http.Server

	plans  *plan.Service
	fanout *connector.Fanout
	match  *match.Engine
}

func Module() fx.Option {
	return fx.Options(
		fx.Provide(NewServer),
		fx.Invoke(RegisterHooks),
	)
}

func NewServer(cfg config.Config, logger *zap.Logger, plans *plan.Service, fanout *connector.Fanout, matcher *match.Engine) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		plans:  plans,
		fanout: fanout,
		match:  matcher,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/templates", s.handleTemplates)
	mux.HandleFunc("/v1/plans", s.handlePlans)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/query", s.handleQuery)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func RegisterHooks(lc fx.Lifecycle, server *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			server.logger.Info("http server starting", zap.String("addr", server.srv.Addr))
			go func() {
				if err := server.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					server.logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			server.logger.Info("http server stopping")
			return server.srv.Shutdown(shutdownCtx)
		},
	})
}
