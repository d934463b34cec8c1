package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"readcast/internal/generation"
	"readcast/internal/pipeline"
	"readcast/internal/publish"
	"readcast/internal/source"
	"readcast/internal/stage"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int
	var checkFlag bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline invocation",
		Long: "Discover newly saved articles, advance pending records through the\n" +
			"pipeline within the work budget, and re-render the podcast feed if the\n" +
			"published set changed. Designed to be invoked from cron.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			logger, err := ctx.buildLogger(cfg)
			if err != nil {
				return err
			}

			articles, err := source.New(cfg.Source)
			if err != nil {
				return err
			}
			backend, err := generation.New(cfg.Generation)
			if err != nil {
				return err
			}
			bucket, err := publish.NewBucket(cfg.Publish)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			orchestrator := pipeline.New(cfg, store, logger, articles, backend, bucket)
			if checkFlag {
				return printHealth(cmd, orchestrator.HealthCheck(runCtx))
			}
			summary, err := orchestrator.Run(runCtx, pipeline.RunOptions{LimitOverride: limitFlag})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Discovered: %d\n", summary.Discovered)
			fmt.Fprintf(out, "Advanced:   %d\n", summary.Advanced)
			fmt.Fprintf(out, "Skipped:    %d\n", summary.Skipped)
			fmt.Fprintf(out, "Retried:    %d\n", summary.Retried)
			fmt.Fprintf(out, "Abandoned:  %d\n", summary.Abandoned)
			fmt.Fprintf(out, "Published:  %d\n", summary.Published)
			fmt.Fprintf(out, "Feed:       %s\n", feedOutcome(summary))
			if summary.Halted {
				return fmt.Errorf("run halted: %s", summary.HaltReason)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Override the configured work budget for this run")
	cmd.Flags().BoolVar(&checkFlag, "check", false, "Probe each stage's backing service and exit without processing")
	return cmd
}

func printHealth(cmd *cobra.Command, checks []stage.Health) error {
	rows := make([][]string, 0, len(checks))
	failed := 0
	for _, check := range checks {
		status := "ok"
		if !check.Ready {
			status = "unavailable"
			failed++
		}
		rows = append(rows, []string{check.Name, status, check.Detail})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Stage", "Status", "Detail"}, rows, nil))
	if failed > 0 {
		return fmt.Errorf("%d of %d stages unavailable", failed, len(checks))
	}
	return nil
}

func feedOutcome(summary *pipeline.Summary) string {
	if summary.FeedRendered {
		return "rendered"
	}
	return "unchanged"
}
