package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/contactbox/internal/analytics"
	"github.com/hyperengineering/contactbox/internal/types"
)

var subsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show submission counts and distributions",
	Args:  cobra.NoArgs,
	RunE:  runSubsStats,
}

func runSubsStats(cmd *cobra.Command, args []string) error {
	db, cfg, err := resolveStore()
	if err != nil {
		return err
	}
	defer db.Close()

	loc, err := cfg.Analytics.Location()
	if err != nil {
		return err
	}
	svc := analytics.NewService(db,
		analytics.WithLocation(loc),
		analytics.WithWindows(cfg.Analytics.TrendDays, cfg.Analytics.HourlyHours),
	)
	summary, err := svc.Summary(cmd.Context())
	if err != nil {
		return err
	}

	if subsJSONOutput {
		return printJSON(cmd.OutOrStdout(), summary)
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(w, "Total:\t%d\n", summary.Submissions.Total)
	fmt.Fprintf(w, "Today:\t%d\n", summary.Submissions.Today)
	fmt.Fprintf(w, "This week:\t%d\n", summary.Submissions.ThisWeek)
	fmt.Fprintf(w, "Unique senders:\t%d\n", summary.Submissions.UniqueEmails)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, s := range types.Statuses {
		fmt.Fprintf(w, "%s\t%d\n", s, summary.StatusDistribution[string(s)])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PRIORITY\tCOUNT")
	for _, p := range types.Priorities {
		fmt.Fprintf(w, "%s\t%d\n", p, summary.PriorityDistribution[string(p)])
	}
	return w.Flush()
}
