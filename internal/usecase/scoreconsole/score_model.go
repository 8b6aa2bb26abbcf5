package scoreconsole

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"reliability/internal/bootstrap/logging"
	domainreliability "reliability/internal/domain/reliability"
	"reliability/internal/ports"
	"reliability/internal/usecase/reliability"
)

const maxShownLogs = 6
const maxActionLines = 8

// ScoreService is the part of the reliability service the console drives.
type ScoreService interface {
	ListSummaries(ctx context.Context, model string, limit int, offset int) ([]ports.SummaryRecord, error)
	FindRecentLogs(ctx context.Context, model string, foreignKey string, limit int) ([]ports.AuditLogRecord, error)
	VerifyChecksum(ctx context.Context, input reliability.VerifyChecksumInput) (reliability.ChecksumResult, error)
	VerifyChain(ctx context.Context, model string, foreignKey string) (reliability.ChainReport, error)
	Recompute(ctx context.Context, input reliability.RecomputeInput) (reliability.RecomputeResult, error)
}

type ScoreOptions struct {
	Model           string
	Limit           int
	Actor           string
	RefreshInterval time.Duration
}

type scoreModel struct {
	ctx             context.Context
	service         ScoreService
	model           string
	limit           int
	actor           string
	refreshInterval time.Duration

	summaries     []ports.SummaryRecord
	selectedIndex int
	logs          []ports.AuditLogRecord
	hasLogs       bool
	status        string
	actionLines   []string
}

type summariesLoadedMsg struct {
	items []ports.SummaryRecord
	err   error
}

type logsLoadedMsg struct {
	entity string
	items  []ports.AuditLogRecord
	err    error
}

type tickMsg struct{}

type actionDoneMsg struct {
	action     string
	foreignKey string
	result     string
	err        error
}

func NewScoreModel(ctx context.Context, service ScoreService, options ScoreOptions) tea.Model {
	limit := options.Limit
	if limit <= 0 {
		limit = 50
	}
	actor := strings.TrimSpace(options.Actor)
	if actor == "" {
		actor = "score-console"
	}
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &scoreModel{
		ctx:             ctx,
		service:         service,
		model:           strings.TrimSpace(options.Model),
		limit:           limit,
		actor:           actor,
		refreshInterval: interval,
		status:          "loading",
	}
}

func (m *scoreModel) Init() tea.Cmd {
	return tea.Batch(m.loadSummariesCmd(), m.tickCmd())
}

func (m *scoreModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadSummariesCmd(), m.tickCmd())
	case summariesLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.summaries = msg.items
		if len(m.summaries) == 0 {
			m.selectedIndex = 0
			m.hasLogs = false
			m.logs = nil
			m.status = "no summaries"
			return m, nil
		}
		if m.selectedIndex < 0 {
			m.selectedIndex = 0
		}
		if m.selectedIndex >= len(m.summaries) {
			m.selectedIndex = len(m.summaries) - 1
		}
		m.status = fmt.Sprintf("refreshed, %d summaries", len(m.summaries))
		return m, m.loadSelectedLogsCmd()
	case logsLoadedMsg:
		if !m.isCurrentSelection(msg.entity) {
			return m, nil
		}
		if msg.err != nil {
			m.hasLogs = false
			m.logs = nil
			m.status = "load logs failed: " + msg.err.Error()
			return m, nil
		}
		m.hasLogs = true
		m.logs = msg.items
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.appendActionLine(msg.action, msg.foreignKey, "failed", msg.err)
		} else {
			m.status = fmt.Sprintf("%s done: %s", msg.action, msg.result)
			m.appendActionLine(msg.action, msg.foreignKey, msg.result, nil)
		}
		return m, m.loadSummariesCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadSummariesCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
				return m, m.loadSelectedLogsCmd()
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.summaries)-1 {
				m.selectedIndex++
				return m, m.loadSelectedLogsCmd()
			}
			return m, nil
		case "v":
			return m, m.verifyLogCmd()
		case "c":
			return m, m.verifyChainCmd()
		case "r":
			return m, m.recomputeCmd()
		}
	}
	return m, nil
}

func (m *scoreModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Reliability Scores"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"model=%s limit=%d actor=%s refresh=%s",
		firstNonEmpty(m.model, "all"),
		m.limit,
		m.actor,
		m.refreshInterval,
	)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Summaries"))
	builder.WriteString("\n")
	if len(m.summaries) == 0 {
		builder.WriteString(dimStyle.Render("- no summaries"))
		builder.WriteString("\n\n")
	} else {
		for index, item := range m.summaries {
			line := fmt.Sprintf("%s:%s total=%s completeness=%s version=%s rev=%d",
				item.Model,
				item.ForeignKey,
				domainreliability.FormatTotal(item.TotalScore),
				domainreliability.FormatPercent(item.CompletenessPercent),
				item.ScoringVersion,
				item.Revision,
			)
			if index == m.selectedIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Recent Logs"))
	builder.WriteString("\n")
	if !m.hasLogs || len(m.logs) == 0 {
		builder.WriteString(dimStyle.Render("- no logs"))
		builder.WriteString("\n\n")
	} else {
		shown := m.logs
		if len(shown) > maxShownLogs {
			shown = shown[:maxShownLogs]
		}
		for _, entry := range shown {
			builder.WriteString(fmt.Sprintf("- #%d %s %s -> %s source=%s %s\n",
				entry.Sequence,
				domainreliability.FormatTimestamp(entry.Created),
				formatFromTotal(entry.FromTotalScore),
				domainreliability.FormatTotal(entry.ToTotalScore),
				entry.Source,
				shortChecksum(entry.ChecksumSHA256),
			))
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	status := "- " + firstNonEmpty(m.status, "ready")
	if strings.Contains(m.status, "mismatch") || strings.Contains(m.status, "broken") {
		status = warnStyle.Render(status)
	}
	builder.WriteString(status)
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Actions"))
	builder.WriteString("\n")
	if len(m.actionLines) == 0 {
		builder.WriteString(dimStyle.Render("- no actions"))
		builder.WriteString("\n\n")
	} else {
		for _, line := range m.actionLines {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: up/k down/j move  g refresh  v verify newest log  c verify chain  r recompute  q quit"))
	return builder.String()
}

func (m *scoreModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *scoreModel) loadSummariesCmd() tea.Cmd {
	return func() tea.Msg {
		items, err := m.service.ListSummaries(m.ctx, m.model, m.limit, 0)
		if err != nil {
			return summariesLoadedMsg{err: err}
		}
		return summariesLoadedMsg{items: items}
	}
}

func (m *scoreModel) loadSelectedLogsCmd() tea.Cmd {
	selected, ok := m.selectedSummary()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		items, err := m.service.FindRecentLogs(m.ctx, selected.Model, selected.ForeignKey, maxShownLogs)
		return logsLoadedMsg{entity: entityRef(selected), items: items, err: err}
	}
}

func (m *scoreModel) verifyLogCmd() tea.Cmd {
	selected, ok := m.selectedSummary()
	if !ok {
		m.status = "no entity selected"
		return nil
	}
	if !m.hasLogs || len(m.logs) == 0 {
		m.status = "no log to verify"
		return nil
	}
	newest := m.logs[0]
	m.status = "verifying checksum..."
	return func() tea.Msg {
		result, err := m.service.VerifyChecksum(m.ctx, reliability.VerifyChecksumInput{
			Model:      selected.Model,
			ForeignKey: selected.ForeignKey,
			LogID:      newest.ID,
		})
		if err != nil {
			return actionDoneMsg{action: "verify", foreignKey: selected.ForeignKey, err: err}
		}
		outcome := fmt.Sprintf("log #%d checksum valid", newest.Sequence)
		if !result.Valid {
			outcome = fmt.Sprintf("log #%d checksum mismatch", newest.Sequence)
		}
		return actionDoneMsg{action: "verify", foreignKey: selected.ForeignKey, result: outcome}
	}
}

func (m *scoreModel) verifyChainCmd() tea.Cmd {
	selected, ok := m.selectedSummary()
	if !ok {
		m.status = "no entity selected"
		return nil
	}
	m.status = "verifying chain..."
	return func() tea.Msg {
		report, err := m.service.VerifyChain(m.ctx, selected.Model, selected.ForeignKey)
		if err != nil {
			return actionDoneMsg{action: "chain", foreignKey: selected.ForeignKey, err: err}
		}
		outcome := fmt.Sprintf("chain valid, %d entries", report.Entries)
		if !report.Valid {
			outcome = fmt.Sprintf("chain broken, %d break(s) in %d entries", len(report.Breaks), report.Entries)
		}
		return actionDoneMsg{action: "chain", foreignKey: selected.ForeignKey, result: outcome}
	}
}

func (m *scoreModel) recomputeCmd() tea.Cmd {
	selected, ok := m.selectedSummary()
	if !ok {
		m.status = "no entity selected"
		return nil
	}
	m.status = "recomputing..."
	return func() tea.Msg {
		result, err := m.service.Recompute(m.ctx, reliability.RecomputeInput{
			Model:      selected.Model,
			ForeignKey: selected.ForeignKey,
			Source:     "console",
			Actor:      domainreliability.Actor{Service: m.actor},
			Message:    "console recompute",
		})
		if err != nil {
			return actionDoneMsg{action: "recompute", foreignKey: selected.ForeignKey, err: err}
		}
		outcome := "unchanged total=" + domainreliability.FormatTotal(result.Summary.TotalScore)
		if result.Changed {
			outcome = "changed total=" + domainreliability.FormatTotal(result.Summary.TotalScore)
		}
		return actionDoneMsg{action: "recompute", foreignKey: selected.ForeignKey, result: outcome}
	}
}

func (m *scoreModel) selectedSummary() (ports.SummaryRecord, bool) {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.summaries) {
		return ports.SummaryRecord{}, false
	}
	return m.summaries[m.selectedIndex], true
}

func (m *scoreModel) isCurrentSelection(entity string) bool {
	selected, ok := m.selectedSummary()
	if !ok {
		return false
	}
	return entityRef(selected) == entity
}

func entityRef(summary ports.SummaryRecord) string {
	return summary.Model + ":" + summary.ForeignKey
}

func (m *scoreModel) appendActionLine(action string, foreignKey string, result string, opErr error) {
	outcome := strings.TrimSpace(result)
	if opErr != nil {
		outcome = "error: " + opErr.Error()
	}
	if outcome == "" {
		outcome = "ok"
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s fk=%s action=%s result=%s", timestamp, foreignKey, action, outcome)
	m.actionLines = append([]string{line}, m.actionLines...)
	if len(m.actionLines) > maxActionLines {
		m.actionLines = m.actionLines[:maxActionLines]
	}

	logging.Info(m.ctx, "score console action",
		slog.String("actor", m.actor),
		slog.String("foreign_key", foreignKey),
		slog.String("action", action),
		slog.String("result", outcome),
	)
}

func formatFromTotal(total *decimal.Decimal) string {
	if total == nil {
		return "-"
	}
	return domainreliability.FormatTotal(*total)
}

func shortChecksum(checksum string) string {
	if len(checksum) <= 12 {
		return checksum
	}
	return checksum[:12]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized != "" {
			return normalized
		}
	}
	return ""
}
