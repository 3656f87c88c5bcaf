package cli

import (
	"github.com/spf13/cobra"

	"pharmacy-forecast/internal/app"
)

var synthOpts app.SynthOptions

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Print a synthesized demand series without contacting the service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Synth(synthOpts)
	},
}

func init() {
	synthCmd.Flags().StringVar(&synthOpts.Name, "name", "", "Product name (used for seeding and demand heuristics)")
	synthCmd.Flags().StringVar(&synthOpts.Category, "category", "", "Category name")
	synthCmd.Flags().Float64Var(&synthOpts.AvgDailySales, "avg-daily", 0, "Average daily sales; 0 applies the name heuristics")
	synthCmd.Flags().Float64Var(&synthOpts.UnitPrice, "price", 0, "Unit price")
	synthCmd.Flags().Float64Var(&synthOpts.CostPrice, "cost", 0, "Unit cost")
	synthCmd.Flags().StringVar(&synthOpts.Timeframe, "timeframe", "", "Aggregation timeframe (defaults to config)")
}
