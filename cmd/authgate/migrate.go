package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/spec-kit/auth-gate/internal/persistence"
)

func migrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if !rt.postgres.Configured() {
				return errors.New("POSTGRES_DSN is not set")
			}
			if dir == "" {
				dir = rt.cfg.Postgres.MigrationsDir
			}
			return persistence.RunMigrations(cmd.Context(), rt.postgres.PoolHandle(), dir, rt.logger)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory of .sql files (default POSTGRES_MIGRATIONS_DIR)")

	return cmd
}
