package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/contactbox/internal/config"
	"github.com/hyperengineering/contactbox/internal/store"
)

var (
	subsDBPath     string
	subsJSONOutput bool
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "Inspect and manage submissions",
	Long:  "List, export, delete and summarize submissions directly from the database without running the server.",
}

func init() {
	submissionsCmd.PersistentFlags().StringVar(&subsDBPath, "db", "",
		"Database path (overrides config and CONTACTBOX_DB_PATH)")
	submissionsCmd.PersistentFlags().BoolVar(&subsJSONOutput, "json", false,
		"Output in JSON format")

	submissionsCmd.AddCommand(subsListCmd)
	submissionsCmd.AddCommand(subsExportCmd)
	submissionsCmd.AddCommand(subsDeleteCmd)
	submissionsCmd.AddCommand(subsStatsCmd)
}

// resolveStore opens the database named by --db, falling back to config.
// The caller owns the returned config's limits and must close the store.
func resolveStore() (*store.SQLiteStore, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if subsDBPath != "" {
		cfg.Database.Path = subsDBPath
	}
	db, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
