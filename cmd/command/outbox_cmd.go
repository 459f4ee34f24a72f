package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autopeca/marketplace/internal/server"
	"github.com/autopeca/marketplace/pkg/configuration"
)

func newOutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Outbox maintenance",
	}
	cmd.AddCommand(newOutboxRelayCmd())
	return cmd
}

func newOutboxRelayCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Deliver pending outbox rows to the event handlers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, pool, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			conf := configuration.Use()
			relays, err := server.NewRelays(conf, pool, conf.Logger(), app.EventPublisher())
			if err != nil {
				return err
			}
			if len(relays) == 0 {
				return fmt.Errorf("no relay tables configured (OUTBOX_RELAY_TABLES)")
			}

			if once {
				total := 0
				for _, r := range relays {
					n, err := r.RunOnce(ctx)
					if err != nil {
						return err
					}
					total += n
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dispatched %d messages\n", total)
				return nil
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, r := range relays {
				r := r
				g.Go(func() error { return r.Run(gctx) })
			}
			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Process a single batch per table and exit")
	return cmd
}
