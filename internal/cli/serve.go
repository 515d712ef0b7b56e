package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/riftline/arcjournal/internal/app"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the journal service",
		Long:  "Starts the HTTP (metrics, healthz, feed) and gRPC (health) servers and serves until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			service, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return service.Run(ctx)
		},
	}
}
