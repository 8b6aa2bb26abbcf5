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

var fieldCmd = &cobra.Command{
	Use:   "field",
	Short: "Field score commands",
}

var fieldSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Upsert one field score without recomputing the summary",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, foreignKey := entityFlags(cmd)
		field, _ := cmd.Flags().GetString("field")
		score, _ := cmd.Flags().GetString("score")
		input := reliability.SetFieldScoreInput{
			Model:           model,
			ForeignKey:      foreignKey,
			FieldScoreInput: reliability.FieldScoreInput{Field: field, Score: score},
		}
		if cmd.Flags().Changed("weight") {
			weight, _ := cmd.Flags().GetString("weight")
			input.Weight = &weight
		}
		if cmd.Flags().Changed("max-score") {
			maxScore, _ := cmd.Flags().GetString("max-score")
			input.MaxScore = &maxScore
		}
		if cmd.Flags().Changed("notes") {
			notes, _ := cmd.Flags().GetString("notes")
			input.Notes = &notes
		}

		stored, err := svc.SetFieldScore(ctx, input)
		if err != nil {
			logging.Error(ctx, "set field score failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "set field score")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(),
			"field score set: %s:%s %s score=%s weight=%s max_score=%s\n",
			stored.Model,
			stored.ForeignKey,
			stored.Field,
			domainreliability.FormatScore(stored.Score),
			domainreliability.FormatWeight(stored.Weight),
			domainreliability.FormatScore(stored.MaxScore),
		); err != nil {
			return errs.Wrap(err, "write field set output")
		}
		return nil
	}),
}

var fieldListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the field scores of an entity",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, foreignKey := entityFlags(cmd)
		items, err := svc.GetFieldScores(ctx, model, foreignKey)
		if err != nil {
			logging.Error(ctx, "list field scores failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list field scores")
		}

		if len(items) == 0 {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), "no field scores"); err != nil {
				return errs.Wrap(err, "write field list output")
			}
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "field\tscore\tweight\tmax_score\tmodified\tnotes"); err != nil {
			return errs.Wrap(err, "write field list header")
		}
		for _, item := range items {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				item.Field,
				domainreliability.FormatScore(item.Score),
				domainreliability.FormatWeight(item.Weight),
				domainreliability.FormatScore(item.MaxScore),
				domainreliability.FormatTimestamp(item.Modified),
				optionalText(item.Notes),
			); err != nil {
				return errs.Wrap(err, "write field list item")
			}
		}
		return w.Flush()
	}),
}

var fieldStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate one field over every entity of a model",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, _ := cmd.Flags().GetString("model")
		field, _ := cmd.Flags().GetString("field")
		stats, err := svc.GetFieldStats(ctx, model, field)
		if err != nil {
			logging.Error(ctx, "field stats failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "field stats")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "metric\tvalue"); err != nil {
			return errs.Wrap(err, "write field stats header")
		}
		if _, err := fmt.Fprintf(w, "count\t%d\navg\t%s\nmin\t%s\nmax\t%s\n",
			stats.Count,
			domainreliability.FormatTotal(stats.Avg),
			domainreliability.FormatScore(stats.Min),
			domainreliability.FormatScore(stats.Max),
		); err != nil {
			return errs.Wrap(err, "write field stats rows")
		}
		return w.Flush()
	}),
}

func init() {
	rootCmd.AddCommand(fieldCmd)
	fieldCmd.AddCommand(fieldSetCmd, fieldListCmd, fieldStatsCmd)

	addEntityFlags(fieldSetCmd)
	fieldSetCmd.Flags().String("field", "", "Field name, for example title")
	fieldSetCmd.Flags().String("score", "", "Score with at most two decimals")
	fieldSetCmd.Flags().String("weight", "", "Weight between 0 and 1 (default: profile weight or 0.000)")
	fieldSetCmd.Flags().String("max-score", "", "Max score (default: profile max or 1.00)")
	fieldSetCmd.Flags().String("notes", "", "Optional reviewer notes")
	_ = fieldSetCmd.MarkFlagRequired("field")
	_ = fieldSetCmd.MarkFlagRequired("score")

	addEntityFlags(fieldListCmd)

	fieldStatsCmd.Flags().String("model", "", "Entity model, for example Products")
	fieldStatsCmd.Flags().String("field", "", "Field name")
	_ = fieldStatsCmd.MarkFlagRequired("model")
	_ = fieldStatsCmd.MarkFlagRequired("field")
}
