package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autopeca/marketplace/modules/attendance/seed"
	"github.com/autopeca/marketplace/pkg/composables"
)

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a directory and solicitations dataset",
		Long:  `Without --file the registered module seeders run (the embedded development dataset). With --file the YAML dataset is validated and upserted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var fixtures *seed.Fixtures
			if file != "" {
				// validate before touching the database
				var err error
				if fixtures, err = seed.LoadFile(file); err != nil {
					return err
				}
			}

			app, pool, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if fixtures == nil {
				return app.Seeder().Seed(cmd.Context(), app)
			}
			ctx := composables.WithPool(cmd.Context(), pool)
			if err := seed.Apply(ctx, fixtures); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d stores, %d agents, %d solicitations\n",
				len(fixtures.Stores), len(fixtures.Agents), len(fixtures.Solicitations))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML fixtures file")
	return cmd
}
