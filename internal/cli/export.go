package cli

import (
	"github.com/spf13/cobra"

	"pharmacy-forecast/internal/app"
)

var (
	exportTimeframe string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportTheme     string
)

var exportCmd = &cobra.Command{
	Use:   "export <target-key>",
	Short: "Export a target's reconciled chart as CSV and/or PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			Key:       args[0],
			Timeframe: exportTimeframe,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
			Theme:     exportTheme,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTimeframe, "timeframe", "", "Aggregation timeframe (defaults to config)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	exportCmd.Flags().StringVar(&exportTheme, "theme", "", "Chart theme: light or dark (defaults to config)")
}
