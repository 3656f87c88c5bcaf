package app

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/synth"
)

// Synth prints a synthesized demand series for an ad-hoc target without
// contacting the forecasting service.
func (a *App) Synth(opts SynthOptions) error {
	if opts.Name == "" {
		return errors.New("--name is required")
	}
	if opts.UnitPrice < 0 || opts.CostPrice < 0 || opts.AvgDailySales < 0 {
		return errors.New("prices and average sales cannot be negative")
	}
	tf := a.Config.DefaultTimeframe()
	if opts.Timeframe != "" {
		parsed, err := synth.ParseTimeframe(opts.Timeframe)
		if err != nil {
			return err
		}
		tf = parsed
	}

	target := model.Target{
		Type:          model.TargetProduct,
		Name:          opts.Name,
		Category:      opts.Category,
		UnitPrice:     decimal.NewFromFloat(opts.UnitPrice),
		CostPrice:     decimal.NewFromFloat(opts.CostPrice),
		AvgDailySales: opts.AvgDailySales,
	}

	series := synth.New(synth.Options{}, a.Logger).Generate(target, tf)

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSales\tRevenue\tCost\tProfit\tMargin\tDemand\tProfit level")
	for _, p := range series {
		fmt.Fprintln(writer, formatSeriesRow(p))
	}
	return writer.Flush()
}
