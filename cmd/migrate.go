package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	Long:  "Applies all pending SQL migrations to the qc schema in lexicographic order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "migrate", false)
		if err != nil {
			return err
		}
		defer env.Close()

		pending, err := store.PendingMigrations(ctx, env.Store.Pool())
		if err != nil {
			return eris.Wrap(err, "migrate")
		}
		if len(pending) == 0 {
			zap.L().Info("schema is up to date")
			return nil
		}

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		zap.L().Info("migrations applied", zap.Strings("files", pending))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
