package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomis52/nodeflow/buildinfo"
	"github.com/nomis52/nodeflow/config"
	"github.com/nomis52/nodeflow/history"
	"github.com/nomis52/nodeflow/logging"
	"github.com/nomis52/nodeflow/metrics"
	"github.com/nomis52/nodeflow/server/runner"
)

type runArgs struct {
	configPath string
	push       bool
	resume     bool
}

func newRunCmd() *cobra.Command {
	var args runArgs
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the graph once in the foreground",
		Long: `Run the graph once and print a summary of every node.

With --resume, nodes that completed in the most recent run are skipped if that
run failed. Resuming across invocations needs history.dir to be configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGraph(ctx, args, cmd.OutOrStdout())
		},
	}
	addConfigFlag(cmd, &args.configPath)
	cmd.Flags().BoolVar(&args.push, "push", false, "Push metrics to monitoring.victoriametrics_url when the run ends")
	cmd.Flags().BoolVar(&args.resume, "resume", false, "Resume from the latest failed run")
	return cmd
}

func runGraph(ctx context.Context, args runArgs, out io.Writer) error {
	cfg, err := config.LoadConfig(args.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if args.resume {
		cfg.Orchestrator.Resume = true
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closer.Close()

	props := buildinfo.Get()
	logger.Info("nodeflow started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"config_path", args.configPath,
	)

	opts := []runner.Option{}
	if cfg.History.Dir != "" {
		store, err := history.NewDiskStore(cfg.History.Dir, cfg.History.MaxRuns, logger)
		if err != nil {
			return err
		}
		opts = append(opts, runner.WithStore(store))
	}
	if args.push {
		if cfg.Monitoring.VictoriaMetricsURL == "" {
			return errors.New("--push needs monitoring.victoriametrics_url")
		}
		opts = append(opts, runner.WithMetrics(metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: cfg.Monitoring.Instance,
		})))
	}

	r := runner.New(logger, runner.StaticConfig{Cfg: &cfg}, opts...)
	run, err := r.RunOnce(ctx, runner.TriggerCLI)
	if err != nil {
		return err
	}

	printRun(out, run)
	if !run.Success {
		return fmt.Errorf("run failed: %s", run.Reason)
	}
	return nil
}

func printRun(out io.Writer, run history.Run) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tSTATUS\tDURATION\tREASON")
	for _, n := range run.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Name, n.Status, n.Duration().Round(time.Millisecond), n.Reason)
	}
	tw.Flush()

	result := "succeeded"
	if !run.Success {
		result = "failed"
	}
	fmt.Fprintf(out, "\nrun %s %s in %s", run.ID, result, run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if run.ResumedFrom != "" {
		fmt.Fprintf(out, " (resumed from %s)", run.ResumedFrom)
	}
	fmt.Fprintln(out)
}
