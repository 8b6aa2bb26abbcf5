package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"reliability/internal/bootstrap"
	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
	"reliability/internal/usecase/reliability"
	"reliability/internal/usecase/scoreconsole"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Terminal console commands",
}

var consoleScoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Browse summaries, inspect audit logs and verify checksums interactively",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, _ := cmd.Flags().GetString("model")
		limit, _ := cmd.Flags().GetInt("limit")
		actor, _ := cmd.Flags().GetString("actor")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = 5 * time.Second
		}

		program := tea.NewProgram(scoreconsole.NewScoreModel(ctx, svc, scoreconsole.ScoreOptions{
			Model:           model,
			Limit:           limit,
			Actor:           actor,
			RefreshInterval: refreshInterval,
		}), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run score console")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.AddCommand(consoleScoresCmd)

	consoleScoresCmd.Flags().String("model", "", "Entity model (empty shows every model)")
	consoleScoresCmd.Flags().Int("limit", 50, "Max summaries to list")
	consoleScoresCmd.Flags().String("actor", "score-console", "Service name recorded on console recomputes")
	consoleScoresCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
}
