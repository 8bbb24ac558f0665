package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/auth-gate/internal/worker"
)

func purgeCmd() *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete token records that have expired",
		Long: `Delete every registry record whose expiry is strictly before the cutoff.
The cutoff defaults to now.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff := time.Now()
			if before != "" {
				parsed, err := time.Parse(time.RFC3339, before)
				if err != nil {
					return fmt.Errorf("invalid --before: %w", err)
				}
				cutoff = parsed
			}

			rt, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			purger := worker.NewTokenPurgeWorker(rt.registry, rt.logger, rt.metrics, rt.dispatcher, 0)
			removed, err := purger.RunOnce(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired token records\n", removed)
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "RFC3339 cutoff (default now)")

	return cmd
}
