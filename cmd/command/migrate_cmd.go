package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, pool, err := loadApp(cmd.Context())
				if err != nil {
					return err
				}
				defer pool.Close()
				return app.Migrations().Up(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, pool, err := loadApp(cmd.Context())
				if err != nil {
					return err
				}
				defer pool.Close()
				return app.Migrations().Down(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the state of every migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, pool, err := loadApp(cmd.Context())
				if err != nil {
					return err
				}
				defer pool.Close()
				statuses, err := app.Migrations().Status(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tAPPLIED\tPATH")
				for _, s := range statuses {
					fmt.Fprintf(w, "%d\t%t\t%s\n", s.Version, s.Applied, s.Path)
				}
				return w.Flush()
			},
		},
	)
	return cmd
}
