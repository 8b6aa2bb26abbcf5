/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"reliability/internal/bootstrap"
	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
)

// initDbCmd creates the reliability tables without starting the rest of the application.
var initDbCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		logging.Info(ctx, "start init-db")

		app, err := bootstrap.New(ctx, cfgFile)
		if err != nil {
			return errs.Wrap(err, "bootstrap application")
		}
		defer func() {
			if err := app.Close(ctx); err != nil {
				logging.Warn(ctx, "close application failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		tables, err := app.Migrate(ctx)
		if err != nil {
			logging.Error(ctx, "migrate reliability schema failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "migrate reliability schema")
		}

		logging.Info(ctx, "init-db finished", slog.String("database_dsn", app.Config.Database.DSN))
		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "database schema initialized: %s\n", app.Config.Database.DSN); err != nil {
			return errs.Wrap(err, "write init-db output")
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "table\trows")
		for _, table := range tables {
			fmt.Fprintf(w, "%s\t%d\n", table.Table, table.Rows)
		}
		if err := w.Flush(); err != nil {
			return errs.Wrap(err, "write init-db tables")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDbCmd)
}
