package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"reliability/internal/bootstrap"
	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
	"reliability/internal/infrastructure/metrics"
	"reliability/internal/usecase/reliability"
)

// appDeps is the part of the application graph commands work with.
type appDeps struct {
	App      *bootstrap.App
	Service  *reliability.Service
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

func withApp(run func(cmd *cobra.Command, app *bootstrap.App, svc *reliability.Service) error) func(cmd *cobra.Command, args []string) error {
	return withDeps(func(cmd *cobra.Command, deps appDeps) error {
		return run(cmd, deps.App, deps.Service)
	})
}

func withDeps(run func(cmd *cobra.Command, deps appDeps) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.WithAttrs(
			cmd.Context(),
			slog.String("command", cmd.CommandPath()),
			slog.String("config_file", cfgFile),
		)

		var deps appDeps
		fxApp := fx.New(
			bootstrap.Module,
			fx.Provide(func() context.Context { return ctx }),
			fx.Provide(
				fx.Annotate(
					func() string { return cfgFile },
					fx.ResultTags(`name:"configFile"`),
				),
			),
			fx.Populate(&deps.App, &deps.Service, &deps.Registry, &deps.Metrics),
		)

		startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
		defer cancelStart()
		if err := fxApp.Start(startCtx); err != nil {
			logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "start fx application")
		}

		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelStop()
			if err := fxApp.Stop(stopCtx); err != nil {
				logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		logCfg := deps.App.Config.Log
		cmd.SetContext(logging.WithLogger(cmd.Context(), logging.NewLogger(cmd.ErrOrStderr(), logCfg.Level, logCfg.Format)))

		if err := run(cmd, deps); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}
