package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd(root *rootCmd) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := root.settings.client().Health(ctx); err != nil {
				return fmt.Errorf("analysis API at %s: %w", root.settings.APIBaseURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "analysis API at %s: ok\n", root.settings.APIBaseURL)
			return nil
		},
	}
}
