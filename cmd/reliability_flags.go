package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/ports"
	"reliability/internal/usecase/reliability"
)

func addEntityFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "Entity model, for example Products")
	cmd.Flags().String("fk", "", "Entity foreign key (UUID)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("fk")
}

func entityFlags(cmd *cobra.Command) (string, string) {
	model, _ := cmd.Flags().GetString("model")
	foreignKey, _ := cmd.Flags().GetString("fk")
	return model, foreignKey
}

func addProvenanceFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", domainreliability.SourceSystem, "Origin of the change recorded in the audit log")
	cmd.Flags().String("user", "", "Acting user id")
	cmd.Flags().String("service", "", "Acting service name")
	cmd.Flags().String("message", "", "Free-form audit message")
}

func provenanceFlags(cmd *cobra.Command) (string, domainreliability.Actor, string) {
	source, _ := cmd.Flags().GetString("source")
	user, _ := cmd.Flags().GetString("user")
	service, _ := cmd.Flags().GetString("service")
	message, _ := cmd.Flags().GetString("message")
	return source, domainreliability.Actor{UserID: user, Service: service}, message
}

// parseFieldSpec reads "field=score[:weight[:max_score]]". Empty weight or max_score
// keep the profile defaults.
func parseFieldSpec(raw string) (reliability.FieldScoreInput, error) {
	name, values, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(values) == "" {
		return reliability.FieldScoreInput{}, fmt.Errorf("invalid field %q: expected field=score[:weight[:max_score]]", raw)
	}

	parts := strings.Split(values, ":")
	if len(parts) > 3 {
		return reliability.FieldScoreInput{}, fmt.Errorf("invalid field %q: too many ':' separated values", raw)
	}

	input := reliability.FieldScoreInput{Field: strings.TrimSpace(name), Score: strings.TrimSpace(parts[0])}
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		weight := strings.TrimSpace(parts[1])
		input.Weight = &weight
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		maxScore := strings.TrimSpace(parts[2])
		input.MaxScore = &maxScore
	}
	return input, nil
}

func parseFieldSpecs(raw []string) ([]reliability.FieldScoreInput, error) {
	if len(raw) == 0 {
		return nil, errors.New("at least one --field is required")
	}
	out := make([]reliability.FieldScoreInput, 0, len(raw))
	for _, spec := range raw {
		input, err := parseFieldSpec(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, input)
	}
	return out, nil
}

func optionalText(value *string) string {
	if value == nil || *value == "" {
		return "-"
	}
	return *value
}

func optionalTotal(value *ports.AuditLogRecord) string {
	if value == nil || value.FromTotalScore == nil {
		return "-"
	}
	return domainreliability.FormatTotal(*value.FromTotalScore)
}

func writeSummary(out io.Writer, summary ports.SummaryRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	lastCalculated := "-"
	if summary.LastCalculated != nil {
		lastCalculated = domainreliability.FormatTimestamp(*summary.LastCalculated)
	}
	rows := [][2]string{
		{"model", summary.Model},
		{"foreign_key", summary.ForeignKey},
		{"total_score", domainreliability.FormatTotal(summary.TotalScore)},
		{"completeness_percent", domainreliability.FormatPercent(summary.CompletenessPercent)},
		{"scoring_version", summary.ScoringVersion},
		{"field_scores_json", summary.FieldScoresJSON},
		{"last_source", summary.LastSource},
		{"last_calculated", lastCalculated},
		{"updated_by_user_id", optionalText(summary.UpdatedByUserID)},
		{"updated_by_service", optionalText(summary.UpdatedByService)},
		{"revision", fmt.Sprintf("%d", summary.Revision)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", row[0], row[1]); err != nil {
			return errs.Wrap(err, "write summary row")
		}
	}
	return w.Flush()
}

func writeLogTable(out io.Writer, logs []ports.AuditLogRecord) error {
	if len(logs) == 0 {
		_, err := fmt.Fprintln(out, "no audit log entries")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "seq\tid\tforeign_key\tversion\tfrom\tto\tsource\tcreated\tchecksum"); err != nil {
		return errs.Wrap(err, "write log header")
	}
	for i := range logs {
		entry := &logs[i]
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Sequence,
			entry.ID,
			entry.ForeignKey,
			entry.ScoringVersion,
			optionalTotal(entry),
			domainreliability.FormatTotal(entry.ToTotalScore),
			entry.Source,
			domainreliability.FormatTimestamp(entry.Created),
			entry.ChecksumSHA256[:min(12, len(entry.ChecksumSHA256))],
		); err != nil {
			return errs.Wrap(err, "write log row")
		}
	}
	return w.Flush()
}

func resolveOutputWriter(cmd *cobra.Command, outPath string) (io.Writer, func() error, error) {
	trimmed := strings.TrimSpace(outPath)
	if trimmed == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	f, err := os.Create(trimmed)
	if err != nil {
		return nil, nil, errs.Wrapf(err, "open output file %q", trimmed)
	}
	return f, f.Close, nil
}
