package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"webapp-server/internal/common/logging"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the container and accept connections",
		Long: `Start the container and accept connections until SIGINT or SIGTERM.

Examples:
  webserver serve
  webserver serve --config server.yaml --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			logger, err := logging.NewLogger("webserver", cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return a.run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override listen_addr from the config")
	return cmd
}
