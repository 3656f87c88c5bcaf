package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"pharmacy-forecast/internal/chartdata"
	"pharmacy-forecast/internal/engine"
	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/notify"
)

// Forecast selects a target, reconciles its forecast and prints the chart rows.
func (a *App) Forecast(ctx context.Context, opts ForecastOptions) error {
	ctl, cleanup, err := a.newController(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	view, err := a.selectTarget(ctx, ctl, opts.Key, opts.Timeframe)
	if err != nil {
		return err
	}
	ds, err := ctl.Dataset()
	if err != nil {
		return err
	}

	printHeader(a.Out, view)
	printRows(a.Out, ds, opts.Limit)
	if board := ctl.Notices(); board != nil {
		printNotices(a.Out, board.List())
	}
	return nil
}

func printHeader(w io.Writer, view engine.View) {
	if view.Target != nil {
		fmt.Fprintf(w, "%s  %s (%s)  timeframe %s\n", view.Target.Key(), view.Target.Name, view.Target.Category, view.Timeframe)
	}
	b := view.Bundle
	fmt.Fprintf(w, "model %s  accuracy %s  mae %s  rmse %s  mape %s\n\n",
		orDash(b.Model), formatPct(b.Accuracy), formatFloat(b.MAE), formatFloat(b.RMSE), formatFloat(b.MAPE))
}

func printRows(w io.Writer, ds chartdata.Dataset, limit int) {
	rows := ds.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no data points")
		return
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date (UTC)\tActual\tPredicted\tLower\tUpper\tProfit\t")
	for _, r := range rows {
		marker := ""
		if r.FutureOnly {
			marker = "*"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Date.UTC().Format(time.DateOnly),
			formatFloat(r.Actual),
			formatFloat(r.Predicted),
			formatFloat(r.Lower),
			formatFloat(r.Upper),
			formatFloat(r.Profit),
			marker,
		)
	}
	writer.Flush()
}

func printNotices(w io.Writer, notices []notify.Notice) {
	if len(notices) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, n := range notices {
		fmt.Fprintf(w, "! [%s] %s\n", n.Kind, sanitizeInline(n.Message))
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

// formatSeriesRow renders one synthesized point for the synth command.
func formatSeriesRow(p model.DemandPoint) string {
	return fmt.Sprintf("%s\t%d\t%s\t%s\t%s\t%.1f%%\t%s\t%s",
		p.Date.UTC().Format(time.RFC3339),
		p.Sales,
		p.Revenue.StringFixed(2),
		p.Cost.StringFixed(2),
		p.Profit.StringFixed(2),
		p.ProfitMargin,
		p.DemandLevel,
		p.ProfitLevel,
	)
}
