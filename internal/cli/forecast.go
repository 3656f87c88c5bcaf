package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pharmacy-forecast/internal/app"
)

var (
	forecastTimeframe string
	forecastLimit     int
)

var forecastCmd = &cobra.Command{
	Use:   "forecast <target-key>",
	Short: "Reconcile a target's forecast against its demand and print the chart rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if forecastLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}
		return getApp().Forecast(cmd.Context(), app.ForecastOptions{
			Key:       args[0],
			Timeframe: forecastTimeframe,
			Limit:     forecastLimit,
		})
	},
}

func init() {
	forecastCmd.Flags().StringVar(&forecastTimeframe, "timeframe", "", "Aggregation timeframe (1H, 4H, 1D, 7D, 1M, 3M, 1Y)")
	forecastCmd.Flags().IntVar(&forecastLimit, "limit", 40, "Number of most recent rows to display (0 for all)")
}
