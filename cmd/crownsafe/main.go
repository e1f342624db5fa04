package main

import (
	"context"
	"os"

	"github.com/rockmrack/crownsafe/internal/capability"
	"github.com/rockmrack/crownsafe/internal/cli"
	"github.com/rockmrack/crownsafe/internal/config"
	"github.com/rockmrack/crownsafe/internal/connector"
	"github.com/rockmrack/crownsafe/internal/httpserver"
	"github.com/rockmrack/crownsafe/internal/ingestworker"
	"github.com/rockmrack/crownsafe/internal/logging"
	"github.com/rockmrack/crownsafe/internal/match"
	"github.com/rockmrack/crownsafe/internal/notify"
	"github.com/rockmrack/crownsafe/internal/otel"
	"github.com/rockmrack/crownsafe/internal/plan"
	"github.com/rockmrack/crownsafe/internal/recall"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	rootCmd := cli.NewRootCommand()

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		startServer(configPath)
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func startServer(configPath string) {
	app := fx.New(
		config.Module(configPath),
		logging.Module(),
		recall.Module(),
		notify.Module(),
		connector.Module(),
		match.Module(),
		capability.Module(),
		plan.Module(),
		httpserver.Module(),
		ingestworker.Module(),
		fx.Invoke(registerCapabilities),
		fx.Invoke(registerTelemetry),
	)

	app.Run()
}

// registerCapabilities populates the registry before any plan binds
// against it, then freezes it for the life of the process.
func registerCapabilities(registry *capability.Registry, matcher *match.Engine, fanout *connector.Fanout) error {
	if err := registry.Register(capability.QueryRecordsByIdentifiers, matcher); err != nil {
		return err
	}
	if err := registry.Register(capability.RunIngestionCycle, fanout); err != nil {
		return err
	}
	registry.Freeze()
	return nil
}

func registerTelemetry(lc fx.Lifecycle) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			fn, err := otel.Init("crownsafe")
			if err != nil {
				// Telemetry export is optional in local runs.
				return nil
			}
			shutdown = fn
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown != nil {
				return shutdown(ctx)
			}
			return nil
		},
	})
}
