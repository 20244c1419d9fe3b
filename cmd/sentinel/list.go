package main

import (
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/bandi-sentinel/internal/db"
	"github.com/david/bandi-sentinel/internal/ingest"
	"github.com/david/bandi-sentinel/internal/models"
)

func listCommand() *cobra.Command {
	var params db.ListParams

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show stored announcements, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.store.ListAnnouncements(ctx, params)
			if err != nil {
				return err
			}
			renderAnnouncementTable(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.Flags().IntVar(&params.MinScore, "min-score", 0, "only announcements scoring at least this")
	cmd.Flags().StringVar(&params.Source, "source", "", "only announcements from this source id")
	cmd.Flags().IntVar(&params.Limit, "limit", 50, "maximum rows")
	return cmd
}

func runsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent per-source run outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			renderRunTable(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func renderAnnouncementTable(w io.Writer, items []models.StoredAnnouncement) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Score", "Source", "Title", "Deadline", "Terms", "URL"})
	for _, a := range items {
		deadline := "-"
		if a.Deadline != nil {
			deadline = a.Deadline.Format("02/01/2006")
		}
		t.AppendRow(table.Row{a.Score, a.Source, ingest.TruncateText(a.Title, 60), deadline, strings.Join(a.MatchedTerms, ", "), a.URL})
	}
	t.AppendFooter(table.Row{"", "", len(items)})
	t.Render()
}

func renderRunTable(w io.Writer, runs []models.RunOutcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Run", "Source", "Outcome", "Found", "New", "Duration", "Started At", "Error"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			shortID(r.RunID), r.Source, r.Outcome, r.Found, r.New,
			r.Duration.Round(time.Millisecond).String(), r.StartedAt.Local().Format("02/01 15:04:05"),
			ingest.TruncateText(r.ErrorDetail, 60),
		})
	}
	t.Render()
}

func renderSourceTable(w io.Writer, sources []ingest.SourceReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Outcome", "Found", "New", "Known", "Filtered", "Failed", "Alerts", "Duration"})
	for _, s := range sources {
		t.AppendRow(table.Row{
			s.Outcome.Source, s.Outcome.Outcome, s.Outcome.Found, s.Outcome.New,
			s.Known, s.Filtered, s.Failed, s.Alerts, s.Outcome.Duration.Round(time.Millisecond).String(),
		})
	}
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
