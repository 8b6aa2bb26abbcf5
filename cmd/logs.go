package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"reliability/internal/bootstrap"
	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
	"reliability/internal/usecase/reliability"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Audit log queries and checksum verification",
}

var logsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the newest audit entries of an entity",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, foreignKey := entityFlags(cmd)
		limit, _ := cmd.Flags().GetInt("limit")
		items, err := svc.FindRecentLogs(ctx, model, foreignKey, limit)
		if err != nil {
			logging.Error(ctx, "list recent logs failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list recent logs")
		}
		return writeLogTable(cmd.OutOrStdout(), items)
	}),
}

var logsSignificantCmd = &cobra.Command{
	Use:   "significant",
	Short: "Show transitions of a model whose total moved by at least a threshold",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, _ := cmd.Flags().GetString("model")
		threshold, _ := cmd.Flags().GetString("threshold")
		limit, _ := cmd.Flags().GetInt("limit")
		items, err := svc.FindSignificantChanges(ctx, reliability.SignificantChangesInput{
			Model:     model,
			Threshold: threshold,
			Limit:     limit,
		})
		if err != nil {
			logging.Error(ctx, "find significant changes failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "find significant changes")
		}
		return writeLogTable(cmd.OutOrStdout(), items)
	}),
}

var logsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute and compare the checksum of one audit entry",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, foreignKey := entityFlags(cmd)
		logID, _ := cmd.Flags().GetString("log")
		result, err := svc.VerifyChecksum(ctx, reliability.VerifyChecksumInput{
			Model:      model,
			ForeignKey: foreignKey,
			LogID:      logID,
		})
		if err != nil {
			return errs.Wrap(err, "verify checksum")
		}

		status := "valid"
		if !result.Valid {
			status = "MISMATCH"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "checksum %s: log=%s stored=%s computed=%s\n",
			status, result.LogID, result.Stored, result.Computed,
		); err != nil {
			return errs.Wrap(err, "write verify output")
		}
		if !result.Valid {
			return fmt.Errorf("checksum mismatch for log %s", result.LogID)
		}
		return nil
	}),
}

var logsVerifyChainCmd = &cobra.Command{
	Use:   "verify-chain",
	Short: "Verify every checksum of an entity and that entries link up",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, foreignKey := entityFlags(cmd)
		report, err := svc.VerifyChain(ctx, model, foreignKey)
		if err != nil {
			return errs.Wrap(err, "verify chain")
		}

		if report.Valid {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "chain valid: %s:%s entries=%d\n", report.Model, report.ForeignKey, report.Entries)
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintf(w, "chain broken: %s:%s entries=%d breaks=%d\nseq\tlog\tkind\tdetail\n",
			report.Model, report.ForeignKey, report.Entries, len(report.Breaks),
		); err != nil {
			return errs.Wrap(err, "write chain header")
		}
		for _, brk := range report.Breaks {
			if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", brk.Sequence, brk.LogID, brk.Kind, brk.Detail); err != nil {
				return errs.Wrap(err, "write chain break")
			}
		}
		if err := w.Flush(); err != nil {
			return errs.Wrap(err, "flush chain output")
		}
		return fmt.Errorf("audit chain of %s:%s has %d break(s)", report.Model, report.ForeignKey, len(report.Breaks))
	}),
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsRecentCmd, logsSignificantCmd, logsVerifyCmd, logsVerifyChainCmd)

	addEntityFlags(logsRecentCmd)
	logsRecentCmd.Flags().Int("limit", 20, "Max entries to show")

	logsSignificantCmd.Flags().String("model", "", "Entity model, for example Products")
	logsSignificantCmd.Flags().String("threshold", "", "Minimum absolute total change (default: scoring.significant_threshold)")
	logsSignificantCmd.Flags().Int("limit", 20, "Max entries to show")
	_ = logsSignificantCmd.MarkFlagRequired("model")

	addEntityFlags(logsVerifyCmd)
	logsVerifyCmd.Flags().String("log", "", "Audit log id")
	_ = logsVerifyCmd.MarkFlagRequired("log")

	addEntityFlags(logsVerifyChainCmd)
}
