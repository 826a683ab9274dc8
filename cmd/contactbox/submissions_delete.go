package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/contactbox/internal/audit"
	"github.com/hyperengineering/contactbox/internal/lifecycle"
	"github.com/hyperengineering/contactbox/internal/types"
)

var deleteForce bool

// cliAuditIP stands in for the client address on events recorded offline.
const cliAuditIP = "local"

var subsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Permanently delete submissions",
	Long:  "Permanently delete one or more submissions. Missing ids are skipped. Requires --force or interactive confirmation.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSubsDelete,
}

func init() {
	subsDeleteCmd.Flags().BoolVar(&deleteForce, "force", false,
		"Skip confirmation prompt")
}

func runSubsDelete(cmd *cobra.Command, args []string) error {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid submission id %q", a)
		}
		ids = append(ids, id)
	}

	if !deleteForce {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "WARNING: This will permanently delete %d submission(s).\n", len(ids))
		fmt.Fprint(errOut, "Type 'delete' to confirm: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.TrimSpace(input) != "delete" {
			fmt.Fprintln(errOut, "Aborted.")
			return nil
		}
	}

	db, cfg, err := resolveStore()
	if err != nil {
		return err
	}
	defer db.Close()

	mutator := lifecycle.NewMutator(db, lifecycle.WithMaxBulkIDs(cfg.Limits.BulkMaxIDs))
	res, err := mutator.Bulk(cmd.Context(), types.BulkRequest{IDs: ids, Action: types.BulkActionDelete})
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%s: %s", res.Errors[0].Field, res.Errors[0].Message)
	}
	audit.NewRecorder(db, nil).Record(cmd.Context(), types.EventBulkAction, cliAuditIP, map[string]any{
		"action":    types.BulkActionDelete,
		"requested": len(ids),
		"affected":  res.Affected,
		"source":    "cli",
	})

	if subsJSONOutput {
		return printJSON(cmd.OutOrStdout(), types.BulkResult{Action: types.BulkActionDelete, Affected: res.Affected})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d of %d submission(s)\n", res.Affected, len(ids))
	return nil
}
