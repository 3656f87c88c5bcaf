// Package chartdata merges actual, predicted, profit and confidence series onto one date axis.
package chartdata

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-forecast/internal/model"
)

const (
	// DefaultRecentDays is how many trailing actual days are highlighted.
	DefaultRecentDays = 7
	// DefaultBandRatio is the ± fraction used when no bounds were supplied.
	DefaultBandRatio = 0.1
)

// Series names exposed to the presentation layer.
const (
	SeriesActual       = "actual"
	SeriesPredicted    = "predicted"
	SeriesRecentActual = "recent_actual"
	SeriesProfit       = "profit"
	SeriesLower        = "confidence_lower"
	SeriesUpper        = "confidence_upper"
)

// Input feeds Assemble.
type Input struct {
	Actual     []model.DemandPoint
	Record     *model.PerformanceRecord
	UnitPrice  decimal.Decimal
	CostPrice  decimal.Decimal
	RecentDays int
	BandRatio  float64
}

// Row is one day on the chart axis. Nil fields render as gaps.
type Row struct {
	Date         time.Time `json:"date"`
	Actual       *float64  `json:"actual"`
	Predicted    *float64  `json:"predicted"`
	RecentActual *float64  `json:"recent_actual"`
	Profit       *float64  `json:"profit"`
	Lower        *float64  `json:"confidence_lower"`
	Upper        *float64  `json:"confidence_upper"`
	FutureOnly   bool      `json:"future_only"`
}

// Dataset is the chart-ready output.
type Dataset struct {
	Rows       []Row `json:"rows"`
	Reconciled bool  `json:"reconciled"`
}

// Assemble builds the reconciled view. Without a PerformanceRecord it
// degrades to the single-series view from Simple.
func Assemble(in Input) Dataset {
	if in.Record == nil {
		return Simple(in.Actual, in.UnitPrice, in.CostPrice)
	}
	recentDays := in.RecentDays
	if recentDays <= 0 {
		recentDays = DefaultRecentDays
	}
	ratio := in.BandRatio
	if ratio <= 0 {
		ratio = DefaultBandRatio
	}
	margin := in.UnitPrice.Sub(in.CostPrice)

	actualByDay := make(map[time.Time]float64)
	for _, p := range in.Actual {
		actualByDay[dayOf(p.Date)] = float64(p.Sales)
	}
	comparisonByDay := make(map[time.Time]*float64)
	for _, c := range in.Record.Comparison {
		comparisonByDay[dayOf(c.Date)] = c.Predicted
	}
	futureByDay := make(map[time.Time]model.FutureEntry)
	for _, f := range in.Record.Future {
		futureByDay[dayOf(f.Date)] = f
	}

	actualDays := sortedDays(actualByDay)
	var horizon time.Time
	if len(actualDays) > 0 {
		horizon = actualDays[len(actualDays)-1]
	}
	recent := make(map[time.Time]bool, recentDays)
	for _, d := range actualDays[max(0, len(actualDays)-recentDays):] {
		recent[d] = true
	}

	axis := make(map[time.Time]struct{}, len(actualByDay)+len(futureByDay))
	for d := range actualByDay {
		axis[d] = struct{}{}
	}
	for d := range futureByDay {
		axis[d] = struct{}{}
	}

	rows := make([]Row, 0, len(axis))
	for _, day := range sortedDays(axis) {
		row := Row{Date: day}

		if v, ok := actualByDay[day]; ok {
			row.Actual = model.Finite(v)
			if recent[day] {
				row.RecentActual = model.Finite(v)
			}
		}

		future, isFuture := futureByDay[day]
		if p, ok := comparisonByDay[day]; ok {
			row.Predicted = p
		} else if isFuture {
			row.Predicted = future.Predicted
		}

		row.FutureOnly = isFuture && row.Actual == nil && (len(actualDays) == 0 || day.After(horizon))
		if row.FutureOnly && row.Predicted != nil {
			row.Lower = future.Lower
			row.Upper = future.Upper
			if row.Lower == nil {
				row.Lower = model.Finite(*row.Predicted * (1 - ratio))
			}
			if row.Upper == nil {
				row.Upper = model.Finite(*row.Predicted * (1 + ratio))
			}
		}

		row.Profit = profitOf(row, margin)
		rows = append(rows, row)
	}

	return Dataset{Rows: rows, Reconciled: true}
}

// Simple renders the raw series without reconciliation.
func Simple(actual []model.DemandPoint, unitPrice, costPrice decimal.Decimal) Dataset {
	margin := unitPrice.Sub(costPrice)
	byDay := make(map[time.Time]float64)
	for _, p := range actual {
		byDay[dayOf(p.Date)] = float64(p.Sales)
	}

	rows := make([]Row, 0, len(byDay))
	for _, day := range sortedDays(byDay) {
		row := Row{Date: day, Actual: model.Finite(byDay[day])}
		row.Profit = profitOf(row, margin)
		rows = append(rows, row)
	}
	return Dataset{Rows: rows}
}

// Dates returns the axis.
func (d Dataset) Dates() []time.Time {
	out := make([]time.Time, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.Date
	}
	return out
}

// Series returns every named column aligned to Dates; gaps are NaN.
func (d Dataset) Series() map[string]model.Values {
	cols := map[string]model.Values{
		SeriesActual:       make(model.Values, len(d.Rows)),
		SeriesPredicted:    make(model.Values, len(d.Rows)),
		SeriesRecentActual: make(model.Values, len(d.Rows)),
		SeriesProfit:       make(model.Values, len(d.Rows)),
		SeriesLower:        make(model.Values, len(d.Rows)),
		SeriesUpper:        make(model.Values, len(d.Rows)),
	}
	for i, r := range d.Rows {
		cols[SeriesActual][i] = valueOf(r.Actual)
		cols[SeriesPredicted][i] = valueOf(r.Predicted)
		cols[SeriesRecentActual][i] = valueOf(r.RecentActual)
		cols[SeriesProfit][i] = valueOf(r.Profit)
		cols[SeriesLower][i] = valueOf(r.Lower)
		cols[SeriesUpper][i] = valueOf(r.Upper)
	}
	return cols
}

func profitOf(row Row, margin decimal.Decimal) *float64 {
	basis := row.Actual
	if basis == nil {
		basis = row.Predicted
	}
	if basis == nil {
		return nil
	}
	profit := decimal.NewFromFloat(*basis).Mul(margin)
	return model.Finite(profit.InexactFloat64())
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func sortedDays[V any](m map[time.Time]V) []time.Time {
	days := make([]time.Time, 0, len(m))
	for d := range m {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func valueOf(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
