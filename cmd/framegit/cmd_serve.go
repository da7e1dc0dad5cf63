package main

import (
	"github.com/spf13/cobra"

	"github.com/easelhq/framegit/pkg/gateway"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the trusted remote gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gateway.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return gateway.NewServer(cfg).ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "framegit.toml", "path to gateway config file")

	return cmd
}
