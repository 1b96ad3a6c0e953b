package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nomis52/nodeflow/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the graph on demand or on schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []server.Option
			if listen != "" {
				opts = append(opts, server.WithListenAddr(listen))
			}
			srv, err := server.New(configPath, opts...)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				srv.Logger().Info("received signal, shutting down")
			}()
			return srv.Run(ctx)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&listen, "listen", "", "Override server.listen from the config")
	return cmd
}
