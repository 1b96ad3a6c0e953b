package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomis52/nodeflow/config"
	"github.com/nomis52/nodeflow/tasks"
)

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the graph it defines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			nodes, err := tasks.Build(cfg)
			if err != nil {
				return fmt.Errorf("invalid graph: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration valid: %s (%d nodes)\n", configPath, len(nodes))
			return nil
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}
