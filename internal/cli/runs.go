package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pharmacy-forecast/internal/app"
)

var (
	runsLimit     int
	runsPruneKeep time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Display recent training runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		opts := app.RunsOptions{Limit: runsLimit}
		if runsPruneKeep > 0 {
			before := time.Now().UTC().Add(-runsPruneKeep)
			opts.PruneBefore = &before
		}
		return getApp().Runs(cmd.Context(), opts)
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to display")
	runsCmd.Flags().DurationVar(&runsPruneKeep, "prune-older-than", 0, "Delete runs started before now minus this duration")
}
