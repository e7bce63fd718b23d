package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/storage"
)

func (a *App) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEnv(cmd, func(ctx context.Context, env *Env) error {
				logger := observability.NewLogger(observability.InfoLevel, a.log.Out)
				if err := storage.Migrate(ctx, env.DB, logger); err != nil {
					return err
				}
				a.log.WithField("migrations", len(storage.Migrations())).Info("Schema is up to date")
				return nil
			})
		},
	}
}
