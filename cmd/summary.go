package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"reliability/internal/bootstrap"
	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/usecase/reliability"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Reliability summary commands",
}

var summaryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored summary of an entity",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, foreignKey := entityFlags(cmd)
		summary, err := svc.GetSummary(ctx, model, foreignKey)
		if err != nil {
			return errs.Wrap(err, "get summary")
		}
		return writeSummary(cmd.OutOrStdout(), summary)
	}),
}

var summaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List summaries, optionally of one model",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, _ := cmd.Flags().GetString("model")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		items, err := svc.ListSummaries(ctx, model, limit, offset)
		if err != nil {
			logging.Error(ctx, "list summaries failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list summaries")
		}
		if len(items) == 0 {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), "no summaries"); err != nil {
				return errs.Wrap(err, "write summary list output")
			}
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "model\tforeign_key\ttotal\tcompleteness\tversion\trevision\tmodified"); err != nil {
			return errs.Wrap(err, "write summary list header")
		}
		for _, item := range items {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				item.Model,
				item.ForeignKey,
				domainreliability.FormatTotal(item.TotalScore),
				domainreliability.FormatPercent(item.CompletenessPercent),
				item.ScoringVersion,
				item.Revision,
				domainreliability.FormatTimestamp(item.Modified),
			); err != nil {
				return errs.Wrap(err, "write summary list item")
			}
		}
		return w.Flush()
	}),
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.AddCommand(summaryShowCmd, summaryListCmd)

	addEntityFlags(summaryShowCmd)

	summaryListCmd.Flags().String("model", "", "Entity model (empty lists every model)")
	summaryListCmd.Flags().Int("limit", 20, "Max summaries to show")
	summaryListCmd.Flags().Int("offset", 0, "Summaries to skip")
}
