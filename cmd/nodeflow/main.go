// Command nodeflow runs a graph of shell commands with checkpointed resume.
//
//	nodeflow validate -c config.yaml
//	nodeflow run -c config.yaml --push
//	nodeflow serve -c config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nodeflow",
		Short:         "Run a dependency graph of commands",
		Long:          "nodeflow runs the commands of a YAML-defined dependency graph concurrently, records every run and resumes failed runs from their last checkpoint.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newValidateCmd(),
		newVersionCmd(),
	)
	return root
}

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", "", "Path to config file")
	_ = cmd.MarkFlagRequired("config")
}
