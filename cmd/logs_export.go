package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"reliability/internal/bootstrap"
	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/errs"
	"reliability/internal/ports"
	"reliability/internal/usecase/reliability"
)

const exportPageSize = 500

var logsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit entries of a model or one entity",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, _ := cmd.Flags().GetString("model")
		foreignKey, _ := cmd.Flags().GetString("fk")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		sinceRaw, _ := cmd.Flags().GetString("since")
		untilRaw, _ := cmd.Flags().GetString("until")

		if limit <= 0 {
			limit = 1000
		}
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "" {
			format = "json"
		}
		if format != "json" && format != "jsonl" && format != "yaml" {
			return fmt.Errorf("unsupported format %q (expected: json, jsonl or yaml)", format)
		}

		window, err := parseExportWindow(sinceRaw, untilRaw)
		if err != nil {
			return err
		}

		entries, err := collectLogExport(ctx, svc, reliability.LogQuery{Model: model, ForeignKey: foreignKey}, window, limit)
		if err != nil {
			logging.Error(ctx, "list audit logs for export failed", slog.Any("err", errs.Loggable(err)))
			return err
		}

		payload, err := marshalLogExport(entries, format)
		if err != nil {
			return err
		}

		writer, closeFn, err := resolveOutputWriter(cmd, outPath)
		if err != nil {
			return err
		}
		if _, err := writer.Write(payload); err != nil {
			_ = closeFn()
			return errs.Wrap(err, "write log export output")
		}
		if err := closeFn(); err != nil {
			return errs.Wrap(err, "close log export output")
		}
		return nil
	}),
}

type logExportItem struct {
	ID                  string  `json:"id" yaml:"id"`
	Model               string  `json:"model" yaml:"model"`
	ForeignKey          string  `json:"foreign_key" yaml:"foreign_key"`
	Sequence            int64   `json:"sequence" yaml:"sequence"`
	ScoringVersion      string  `json:"scoring_version" yaml:"scoring_version"`
	FromTotalScore      *string `json:"from_total_score" yaml:"from_total_score"`
	ToTotalScore        string  `json:"to_total_score" yaml:"to_total_score"`
	FromFieldScoresJSON *string `json:"from_field_scores_json" yaml:"from_field_scores_json"`
	ToFieldScoresJSON   string  `json:"to_field_scores_json" yaml:"to_field_scores_json"`
	Source              string  `json:"source" yaml:"source"`
	ActorUserID         *string `json:"actor_user_id" yaml:"actor_user_id"`
	ActorService        *string `json:"actor_service" yaml:"actor_service"`
	Message             *string `json:"message" yaml:"message"`
	ChecksumSHA256      string  `json:"checksum_sha256" yaml:"checksum_sha256"`
	Created             string  `json:"created" yaml:"created"`
}

func init() {
	logsCmd.AddCommand(logsExportCmd)

	logsExportCmd.Flags().String("model", "", "Entity model (empty exports every model)")
	logsExportCmd.Flags().String("fk", "", "Entity foreign key (optional)")
	logsExportCmd.Flags().Int("limit", 1000, "Max entries to export")
	logsExportCmd.Flags().String("format", "json", "Output format: json|jsonl|yaml")
	logsExportCmd.Flags().String("out", "", "Output file path (default: stdout)")
	logsExportCmd.Flags().String("since", "", "Keep entries created at or after this time (RFC3339 or RFC3339Nano)")
	logsExportCmd.Flags().String("until", "", "Keep entries created at or before this time (RFC3339 or RFC3339Nano)")
}

type logLister interface {
	ListLogs(ctx context.Context, query reliability.LogQuery) ([]ports.AuditLogRecord, error)
}

// collectLogExport pages through the log in chronological order and keeps up to
// limit entries inside the window.
func collectLogExport(ctx context.Context, lister logLister, query reliability.LogQuery, window exportWindow, limit int) ([]ports.AuditLogRecord, error) {
	var entries []ports.AuditLogRecord
	for offset := 0; len(entries) < limit; offset += exportPageSize {
		query.Limit = exportPageSize
		query.Offset = offset
		page, err := lister.ListLogs(ctx, query)
		if err != nil {
			return nil, errs.Wrap(err, "list audit logs")
		}
		kept := window.filter(page)
		entries = append(entries, kept[:min(len(kept), limit-len(entries))]...)
		if len(page) < exportPageSize {
			break
		}
	}
	return entries, nil
}

type exportWindow struct {
	since *time.Time
	until *time.Time
}

func parseExportWindow(sinceRaw string, untilRaw string) (exportWindow, error) {
	since, err := parseExportFlagTime("since", sinceRaw)
	if err != nil {
		return exportWindow{}, err
	}
	until, err := parseExportFlagTime("until", untilRaw)
	if err != nil {
		return exportWindow{}, err
	}
	if since != nil && until != nil && since.After(*until) {
		return exportWindow{}, fmt.Errorf("invalid time window: --since %q is after --until %q", since.UTC().Format(time.RFC3339Nano), until.UTC().Format(time.RFC3339Nano))
	}
	return exportWindow{since: since, until: until}, nil
}

func parseExportFlagTime(flagName string, value string) (*time.Time, error) {
	normalized := strings.TrimSpace(value)
	if normalized == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, normalized); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s value %q: expected RFC3339 or RFC3339Nano timestamp", flagName, normalized)
}

func (w exportWindow) filter(entries []ports.AuditLogRecord) []ports.AuditLogRecord {
	if w.since == nil && w.until == nil {
		return entries
	}
	filtered := make([]ports.AuditLogRecord, 0, len(entries))
	for _, entry := range entries {
		if w.since != nil && entry.Created.Before(*w.since) {
			continue
		}
		if w.until != nil && entry.Created.After(*w.until) {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

func marshalLogExport(entries []ports.AuditLogRecord, format string) ([]byte, error) {
	items := toLogItems(entries)

	var buf bytes.Buffer
	switch format {
	case "json", "jsonl":
		encoder := json.NewEncoder(&buf)
		encoder.SetEscapeHTML(false)
		if format == "json" {
			if err := encoder.Encode(items); err != nil {
				return nil, errs.Wrap(err, "encode audit logs as json")
			}
			break
		}
		for _, item := range items {
			if err := encoder.Encode(item); err != nil {
				return nil, errs.Wrap(err, "encode audit logs as jsonl")
			}
		}
	case "yaml":
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(items); err != nil {
			return nil, errs.Wrap(err, "encode audit logs as yaml")
		}
		if err := encoder.Close(); err != nil {
			return nil, errs.Wrap(err, "close yaml encoder")
		}
	default:
		return nil, errors.New("unsupported format")
	}
	return buf.Bytes(), nil
}

func toLogExportItem(entry ports.AuditLogRecord) logExportItem {
	var fromTotal *string
	if entry.FromTotalScore != nil {
		value := domainreliability.FormatTotal(*entry.FromTotalScore)
		fromTotal = &value
	}
	return logExportItem{
		ID:                  entry.ID,
		Model:               entry.Model,
		ForeignKey:          entry.ForeignKey,
		Sequence:            entry.Sequence,
		ScoringVersion:      entry.ScoringVersion,
		FromTotalScore:      fromTotal,
		ToTotalScore:        domainreliability.FormatTotal(entry.ToTotalScore),
		FromFieldScoresJSON: entry.FromFieldScoresJSON,
		ToFieldScoresJSON:   entry.ToFieldScoresJSON,
		Source:              entry.Source,
		ActorUserID:         entry.ActorUserID,
		ActorService:        entry.ActorService,
		Message:             entry.Message,
		ChecksumSHA256:      entry.ChecksumSHA256,
		Created:             domainreliability.FormatTimestamp(entry.Created),
	}
}
