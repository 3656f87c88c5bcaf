package cli

import (
	"github.com/spf13/cobra"

	"pharmacy-forecast/internal/app"
)

var retrainCmd = &cobra.Command{
	Use:   "retrain [target-key...]",
	Short: "Retrain targets one at a time; all targets when none are given",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Retrain(cmd.Context(), app.RetrainOptions{Keys: args})
	},
}
