package main

import (
	"github.com/spf13/cobra"

	"webapp-server/internal/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "webserver",
		Short:         "Serve handlers, filters and static resources from a deployment descriptor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "server config file (json, yaml or toml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log_level from the config")

	cmd.AddCommand(newServeCmd(opts), newRoutesCmd(opts))
	return cmd
}

func (o *rootOptions) load() (config.ServerConfig, error) {
	var cfg config.ServerConfig
	if err := config.Load(o.configPath, &cfg); err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, cfg.Validate()
}
