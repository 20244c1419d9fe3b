package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/david/bandi-sentinel/internal/ingest"
	"github.com/david/bandi-sentinel/internal/logger"
	"github.com/david/bandi-sentinel/internal/relevance"
)

func scanCommand() *cobra.Command {
	var (
		forceDigest bool
		noDigest    bool
		noSummary   bool
		minScore    int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one pass over every enabled source",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := ingest.PipelineOptions{
				ForceDigest: forceDigest,
				SkipDigest:  noDigest,
				SkipSummary: noSummary,
			}
			if cmd.Flags().Changed("min-score") {
				opts.MinScore = ingest.Threshold(minScore)
			}
			p, err := a.pipeline(opts)
			if err != nil {
				return err
			}

			report := p.Run(ctx)

			if a.cfg.PushgatewayURL != "" {
				if err := a.metrics.Push(a.cfg.PushgatewayURL); err != nil {
					logger.Log.WithError(err).Warn("[metrics] push failed")
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: found=%d new=%d alerts=%d total=%d\n",
				report.RunID, report.Found, report.New, report.Alerts, report.Total)
			renderSourceTable(cmd.OutOrStdout(), report.Sources)
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceDigest, "digest", false, "send the full digest regardless of the schedule")
	cmd.Flags().BoolVar(&noDigest, "no-digest", false, "never send the digest in this run")
	cmd.Flags().BoolVar(&noSummary, "no-summary", false, "do not send the end-of-run summary")
	cmd.Flags().IntVar(&minScore, "min-score", ingest.DefaultMinScore, "alert threshold, 0 alerts on every new announcement (default from NOTIFY_MIN_SCORE)")
	cmd.MarkFlagsMutuallyExclusive("digest", "no-digest")
	return cmd
}

func digestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Send the full listing of stored announcements without scanning",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			profile, err := relevance.LoadProfile(a.cfg.ProfileFile)
			if err != nil {
				return err
			}
			p := ingest.NewPipeline(nil, profile, a.store, a.notifier(), ingest.PipelineOptions{})
			return p.RunDigest(ctx)
		},
	}
}
