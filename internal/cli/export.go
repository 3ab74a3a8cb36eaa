package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"finreport-backend/internal/report"
)

func newExportCmd(root *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "export <report.json>",
		Short: "Export a saved report as PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var data report.ReportData
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			doc, err := writePDF(cmd.OutOrStdout(), root.settings, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d page(s)\n", doc.Pages)
			return nil
		},
	}
}
