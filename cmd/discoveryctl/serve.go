package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kbukum/gokit-discovery/admin"
	"github.com/kbukum/gokit-discovery/bootstrap"
	"github.com/kbukum/gokit-discovery/logger"
	"github.com/kbukum/gokit-discovery/observability"
	"github.com/kbukum/gokit-discovery/resolver"
)

func serveCmd(rf *rootFlags) *cobra.Command {
	var adminAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the discovery core with the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rf.load()
			if err != nil {
				return err
			}
			if adminAddr != "" {
				cfg.Admin.Enabled = true
				cfg.Admin.Address = adminAddr
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			log := cfg.NewLogger()
			app, err := bootstrap.NewApp(cfg, bootstrap.WithLogger(log), bootstrap.WithSummaryOutput(cmd.OutOrStdout()))
			if err != nil {
				return err
			}

			var opts []resolver.Option
			var metrics *observability.Metrics
			if cfg.Telemetry.Enabled {
				tp, err := observability.InitTracer(ctx, cfg.TracerConfig(), log)
				if err != nil {
					return err
				}
				app.OnStop(func(ctx context.Context) error { return tp.Shutdown(ctx) })

				mp, err := observability.InitMeter(ctx, cfg.MeterConfig(), log)
				if err != nil {
					return err
				}
				app.OnStop(func(ctx context.Context) error { return mp.Shutdown(ctx) })

				metrics, err = observability.NewMetrics(observability.Meter("discovery"))
				if err != nil {
					return err
				}
				opts = append(opts, resolver.WithMetrics(metrics))
			}

			res, err := resolver.New(cfg, log, opts...)
			if err != nil {
				return err
			}
			if err := app.RegisterComponent(res); err != nil {
				return err
			}

			if cfg.Admin.Enabled {
				handlers := admin.NewHandlers(cfg.Name, cfg.Version, res, app.Components.HealthAll)
				if err := app.RegisterComponent(admin.New(cfg.Admin, handlers, metrics, log)); err != nil {
					return err
				}
			} else {
				log.Info("admin API disabled", logger.Fields("hint", "set admin.enabled or pass --admin-addr"))
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "Enable the admin API on this address")
	return cmd
}
