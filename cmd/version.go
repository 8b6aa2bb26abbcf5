package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"reliability/internal/bootstrap"
	"reliability/internal/bootstrap/logging"
	"reliability/internal/errs"
	"reliability/internal/usecase/reliability"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Scoring version commands",
}

var versionBumpCmd = &cobra.Command{
	Use:   "bump",
	Short: "Move an entity, or with --all every entity of a model, to a new scoring version",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *reliability.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		model, foreignKey := entityFlags(cmd)
		version, _ := cmd.Flags().GetString("to")
		all, _ := cmd.Flags().GetBool("all")
		source, actor, message := provenanceFlags(cmd)
		input := reliability.BumpScoringVersionInput{
			Model:      model,
			ForeignKey: foreignKey,
			Version:    version,
			Source:     source,
			Actor:      actor,
			Message:    message,
		}

		switch {
		case all && foreignKey != "":
			return errors.New("--all and --fk are mutually exclusive")
		case all:
			result, err := svc.BumpModelScoringVersion(ctx, input)
			if err != nil {
				return errs.Wrap(err, "bump model scoring version")
			}
			return writeBatchResult(cmd.OutOrStdout(), result)
		case foreignKey == "":
			return errors.New("--fk is required unless --all is set")
		default:
			result, err := svc.BumpScoringVersion(ctx, input)
			if err != nil {
				return errs.Wrap(err, "bump scoring version")
			}
			return writeRecomputeResult(cmd.OutOrStdout(), result)
		}
	}),
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.AddCommand(versionBumpCmd)

	versionBumpCmd.Flags().String("model", "", "Entity model, for example Products")
	versionBumpCmd.Flags().String("fk", "", "Entity foreign key (UUID)")
	versionBumpCmd.Flags().String("to", "", "Target scoring version, for example v2")
	versionBumpCmd.Flags().Bool("all", false, "Bump every summary of the model")
	addProvenanceFlags(versionBumpCmd)
	_ = versionBumpCmd.MarkFlagRequired("model")
	_ = versionBumpCmd.MarkFlagRequired("to")
}
