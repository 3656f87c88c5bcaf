package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"pharmacy-forecast/internal/chartdata"
)

// Export renders a target's reconciled chart as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	if opts.Theme == "" {
		opts.Theme = a.Config.Export.Theme
	}

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
	if len(ds.Rows) == 0 {
		a.Logger.Info().Str("target", opts.Key).Msg("nothing to export")
		return nil
	}

	rows := downsampleRows(ds.Rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(ds.Rows)).Int("exported", len(rows)).Str("target", opts.Key).Msg("exporting chart")

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, rows); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		title := opts.Key
		if view.Target != nil {
			title = view.Target.Name + " (" + string(view.Timeframe) + ")"
		}
		png := pngOptions{
			Title:   title,
			Palette: chartdata.PaletteFor(opts.Theme),
			Width:   a.Config.Export.Width,
			Height:  a.Config.Export.Height,
		}
		if err := writeRowsPNG(opts.PNGPath, chartdata.Dataset{Rows: rows, Reconciled: ds.Reconciled}, png); err != nil {
			return err
		}
	}

	return nil
}

// downsampleRows keeps max evenly spaced rows, always including both ends.
func downsampleRows(rows []chartdata.Row, max int) []chartdata.Row {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]chartdata.Row, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeRowsCSV(path string, rows []chartdata.Row) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "actual", "predicted", "recent_actual", "profit", "confidence_lower", "confidence_upper", "future_only"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.Date.UTC().Format(time.RFC3339),
			csvFloat(r.Actual),
			csvFloat(r.Predicted),
			csvFloat(r.RecentActual),
			csvFloat(r.Profit),
			csvFloat(r.Lower),
			csvFloat(r.Upper),
			strconv.FormatBool(r.FutureOnly),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

type pngOptions struct {
	Title   string
	Palette chartdata.Palette
	Width   int
	Height  int
}

func writeRowsPNG(path string, ds chartdata.Dataset, opts pngOptions) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}

	dates := ds.Dates()
	cols := ds.Series()
	p := opts.Palette

	candidates := []chart.TimeSeries{
		timeSeries("Actual", dates, cols[chartdata.SeriesActual], p.Actual, false),
	}
	if ds.Reconciled {
		candidates = append(candidates,
			timeSeries("Predicted", dates, cols[chartdata.SeriesPredicted], p.Predicted, true),
			timeSeries("Lower", dates, cols[chartdata.SeriesLower], p.Band, true),
			timeSeries("Upper", dates, cols[chartdata.SeriesUpper], p.Band, true),
			timeSeries("Recent", dates, cols[chartdata.SeriesRecentActual], p.Recent, false),
		)
	}
	profit := timeSeries("Profit", dates, cols[chartdata.SeriesProfit], p.Profit, false)
	profit.YAxis = chart.YAxisSecondary
	candidates = append(candidates, profit)

	var series []chart.Series
	for _, ts := range candidates {
		if len(ts.XValues) > 0 {
			series = append(series, ts)
		}
	}
	if len(series) == 0 {
		return errors.New("no plottable values")
	}

	axisStyle := chart.Style{FontColor: p.Text, StrokeColor: p.Grid}
	graph := chart.Chart{
		Title:      opts.Title,
		TitleStyle: chart.Style{FontColor: p.Text},
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{FillColor: p.Background},
		Canvas:     chart.Style{FillColor: p.Background},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
			Style:          axisStyle,
		},
		YAxis: chart.YAxis{
			Name:      "Units",
			NameStyle: chart.Style{FontColor: p.Text},
			Style:     axisStyle,
		},
		YAxisSecondary: chart.YAxis{
			Name:      "Profit",
			NameStyle: chart.Style{FontColor: p.Text},
			Style:     axisStyle,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// timeSeries drops NaN gaps; go-chart has no notion of a missing value.
func timeSeries(name string, dates []time.Time, values []float64, color drawing.Color, dashed bool) chart.TimeSeries {
	xs := make([]time.Time, 0, len(values))
	ys := make([]float64, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		xs = append(xs, dates[i])
		ys = append(ys, v)
	}
	style := chart.Style{StrokeColor: color, StrokeWidth: 2}
	if dashed {
		style.StrokeDashArray = []float64{5, 3}
	}
	return chart.TimeSeries{Name: name, XValues: xs, YValues: ys, Style: style}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
