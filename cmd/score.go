package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"reliability/internal/bootstrap"
	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/usecase/reliability"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute reliability summaries",
}

var scoreRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute one entity from its stored field scores",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, foreignKey := entityFlags(cmd)
		source, actor, message := provenanceFlags(cmd)
		result, err := svc.Recompute(ctx, reliability.RecomputeInput{
			Model:      model,
			ForeignKey: foreignKey,
			Source:     source,
			Actor:      actor,
			Message:    message,
		})
		if err != nil {
			return errs.Wrap(err, "recompute")
		}
		return writeRecomputeResult(cmd.OutOrStdout(), result)
	}),
}

var scoreApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Upsert field scores and recompute in one transaction",
	Example: `  reliability score apply --model Products --fk 0b6c1b1e-7d2a-4c8e-9f3e-2a1d5c6b7e80 \
    --field title=0.95:0.300 --field description=0.80:0.250 --field manufacturer=0.75:0.200`,
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, foreignKey := entityFlags(cmd)
		rawFields, _ := cmd.Flags().GetStringArray("field")
		fields, err := parseFieldSpecs(rawFields)
		if err != nil {
			return err
		}
		source, actor, message := provenanceFlags(cmd)

		result, err := svc.Score(ctx, reliability.ScoreInput{
			Model:      model,
			ForeignKey: foreignKey,
			Fields:     fields,
			Source:     source,
			Actor:      actor,
			Message:    message,
		})
		if err != nil {
			return errs.Wrap(err, "score entity")
		}
		return writeRecomputeResult(cmd.OutOrStdout(), result)
	}),
}

var scoreBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Recompute every scored entity of a model",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, _ := cmd.Flags().GetString("model")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		source, actor, message := provenanceFlags(cmd)

		result, err := svc.RecomputeModel(ctx, reliability.RecomputeModelInput{
			Model:       model,
			Concurrency: concurrency,
			Source:      source,
			Actor:       actor,
			Message:     message,
		})
		if err != nil {
			return errs.Wrap(err, "recompute model")
		}
		return writeBatchResult(cmd.OutOrStdout(), result)
	}),
}

func writeRecomputeResult(out io.Writer, result reliability.RecomputeResult) error {
	status := "unchanged"
	if result.Changed {
		status = string(result.Transition)
	}
	logID := result.LogID
	if logID == "" {
		logID = "-"
	}
	if _, err := fmt.Fprintf(out,
		"%s:%s %s total=%s completeness=%s version=%s revision=%d log=%s\n",
		result.Summary.Model,
		result.Summary.ForeignKey,
		status,
		domainreliability.FormatTotal(result.Summary.TotalScore),
		domainreliability.FormatPercent(result.Summary.CompletenessPercent),
		result.Summary.ScoringVersion,
		result.Summary.Revision,
		logID,
	); err != nil {
		return errs.Wrap(err, "write recompute output")
	}
	if result.WeightSumExceeded {
		if _, err := fmt.Fprintf(out, "warning: field weights sum to %s, above 1\n", domainreliability.FormatWeight(result.WeightSum)); err != nil {
			return errs.Wrap(err, "write recompute warning")
		}
	}
	return nil
}

func writeBatchResult(out io.Writer, result reliability.BatchResult) error {
	if _, err := fmt.Fprintf(out, "model=%s total=%d changed=%d unchanged=%d failed=%d\n",
		result.Model, result.Total, result.Changed, result.Unchanged, result.Failed,
	); err != nil {
		return errs.Wrap(err, "write batch output")
	}
	for _, failure := range result.Failures {
		if _, err := fmt.Fprintf(out, "  failed %s: %s\n", failure.ForeignKey, failure.Err); err != nil {
			return errs.Wrap(err, "write batch failure")
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.AddCommand(scoreRecomputeCmd, scoreApplyCmd, scoreBatchCmd)

	addEntityFlags(scoreRecomputeCmd)
	addProvenanceFlags(scoreRecomputeCmd)

	addEntityFlags(scoreApplyCmd)
	addProvenanceFlags(scoreApplyCmd)
	scoreApplyCmd.Flags().StringArray("field", nil, "Field score field=score[:weight[:max_score]] (repeatable)")
	_ = scoreApplyCmd.MarkFlagRequired("field")

	scoreBatchCmd.Flags().String("model", "", "Entity model, for example Products")
	scoreBatchCmd.Flags().Int("concurrency", 0, "Parallel entities (default: scoring.batch_concurrency)")
	addProvenanceFlags(scoreBatchCmd)
	_ = scoreBatchCmd.MarkFlagRequired("model")
}
