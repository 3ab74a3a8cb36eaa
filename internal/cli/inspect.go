package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"finreport-backend/internal/extract"
)

func newInspectCmd(_ *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.pdf>",
		Short: "Print the text of an exported PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			text, err := extract.PDFText(raw)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
}
