package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/kbukum/gokit-discovery/bootstrap"
	"github.com/kbukum/gokit-discovery/config"
	"github.com/kbukum/gokit-discovery/discovery"
	"github.com/kbukum/gokit-discovery/resolver"
)

type lookupFlags struct {
	rule      string
	transport string
}

func resolveCmd(rf *rootFlags) *cobra.Command {
	var lf lookupFlags
	cmd := &cobra.Command{
		Use:   "resolve <app> <service>",
		Short: "Resolve the endpoints of a service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), rf, func(ctx context.Context, res *resolver.Resolver) error {
				dc := discovery.NewContext()
				endpoints, err := res.Discover(dc, args[0], args[1], lf.rule, lf.transport)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), rf.output, endpoints)
			})
		},
	}
	cmd.Flags().StringVar(&lf.rule, "rule", "latest", "Version rule: 1.0.0, 1.0.0+, 1.0.0-2.0.0 or latest")
	cmd.Flags().StringVar(&lf.transport, "transport", "", "Transport to resolve; empty uses the configured default")
	return cmd
}

func versionsCmd(rf *rootFlags) *cobra.Command {
	var lf lookupFlags
	cmd := &cobra.Command{
		Use:   "versions <app> <service>",
		Short: "Show the versions a rule selects",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), rf, func(ctx context.Context, res *resolver.Resolver) error {
				view, err := res.Versions(args[0], args[1], lf.rule)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), rf.output, view)
			})
		},
	}
	cmd.Flags().StringVar(&lf.rule, "rule", "latest", "Version rule")
	return cmd
}

// runOnce starts a resolver without the admin API, runs task and stops.
func runOnce(ctx context.Context, rf *rootFlags, task func(context.Context, *resolver.Resolver) error) error {
	cfg, err := rf.load()
	if err != nil {
		return err
	}
	return runTask(ctx, cfg, io.Discard, task)
}

func runTask(ctx context.Context, cfg *config.Discovery, summary io.Writer, task func(context.Context, *resolver.Resolver) error) error {
	log := cfg.NewLogger()
	app, err := bootstrap.NewApp(cfg, bootstrap.WithLogger(log), bootstrap.WithSummaryOutput(summary))
	if err != nil {
		return err
	}
	// One-shot tasks need neither the periodic pull nor watchers.
	cfg.Pull.Interval = 0
	cfg.Registry.Watch = false

	res, err := resolver.New(cfg, log)
	if err != nil {
		return err
	}
	if err := app.RegisterComponent(res); err != nil {
		return err
	}
	return app.RunTask(ctx, func(ctx context.Context) error { return task(ctx, res) })
}
