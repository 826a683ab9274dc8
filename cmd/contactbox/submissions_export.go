package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/contactbox/internal/export"
)

var exportOut string

var subsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every submission as CSV",
	Args:  cobra.NoArgs,
	RunE:  runSubsExport,
}

func init() {
	subsExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
}

func runSubsExport(cmd *cobra.Command, args []string) error {
	db, _, err := resolveStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	rows, err := export.WriteCSV(cmd.Context(), w, db)
	if err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d submissions to %s\n", rows, exportOut)
	}
	return nil
}
