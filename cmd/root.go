/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "reliability",
	Short:        "Products reliability scoring and audit trail",
	Long:         "Scores entity fields, keeps weighted reliability summaries and a checksummed audit log (Cobra + Viper + GORM SQLite no-cgo).",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	ctx = logging.WithLogger(ctx, logging.NewLogger(rootCmd.ErrOrStderr(), "info", "text"))
	ctx = logging.WithAttrs(ctx, slog.String("app", "reliability"))

	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "execute root command")
	}

	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "Config file path")
}
