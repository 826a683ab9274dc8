package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/contactbox/internal/types"
	"github.com/hyperengineering/contactbox/internal/validation"
)

var (
	listStatus   string
	listPriority string
	listLimit    int
	listOffset   int
)

var subsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submissions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSubsList,
}

func init() {
	subsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (new, read, replied, archived)")
	subsListCmd.Flags().StringVar(&listPriority, "priority", "", "Filter by priority (low, normal, high, urgent)")
	subsListCmd.Flags().IntVar(&listLimit, "limit", 0, "Page size (0 = default)")
	subsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Rows to skip")
}

func runSubsList(cmd *cobra.Command, args []string) error {
	var filter types.ListFilter
	if listStatus != "" && listStatus != "all" {
		if err := validation.ValidateEnum("status", listStatus, types.StatusStrings()); err != nil {
			return err
		}
		filter.Status = types.Status(listStatus)
	}
	if listPriority != "" && listPriority != "all" {
		if err := validation.ValidateEnum("priority", listPriority, types.PriorityStrings()); err != nil {
			return err
		}
		filter.Priority = types.Priority(listPriority)
	}
	if listLimit < 0 || listOffset < 0 {
		return fmt.Errorf("limit and offset must not be negative")
	}

	db, _, err := resolveStore()
	if err != nil {
		return err
	}
	defer db.Close()

	page, err := db.ListSubmissions(cmd.Context(), filter, listLimit, listOffset)
	if err != nil {
		return fmt.Errorf("list submissions: %w", err)
	}

	if subsJSONOutput {
		return printJSON(cmd.OutOrStdout(), page)
	}

	if len(page.Submissions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No submissions found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tNAME\tEMAIL\tSUBMITTED")
	for _, s := range page.Submissions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.Status,
			s.Priority,
			validation.Truncate(s.Name, 30),
			s.Email,
			s.SubmittedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "\nShowing %d of %d\n", len(page.Submissions), page.Total)
	return nil
}
