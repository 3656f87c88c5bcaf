// Package reconcile aligns model forecasts against actual demand.
//
// Alignment is positional: the last W actual buckets are paired, in order,
// with the first W forecast values, where W is the shorter of the two
// lengths. Forecast values past W form the future segment.
package reconcile

import (
	"time"

	"pharmacy-forecast/internal/evaluate"
	"pharmacy-forecast/internal/model"
)

// Reconcile builds a fresh PerformanceRecord. It returns false when there is
// nothing to align, in which case the caller keeps its previous record.
func Reconcile(targetKey string, actual []model.DemandPoint, fc model.ForecastResult, interval time.Duration, now time.Time) (model.PerformanceRecord, bool) {
	w := min(len(actual), len(fc.Values))
	if w == 0 {
		return model.PerformanceRecord{}, false
	}

	tail := actual[len(actual)-w:]
	comparison := make([]model.ComparisonEntry, w)
	for i, point := range tail {
		comparison[i] = model.ComparisonEntry{
			Date:      point.Date,
			Actual:    model.Finite(float64(point.Sales)),
			Predicted: model.Finite(fc.Values.At(i)),
		}
	}

	future := buildFuture(fc, w, actual[len(actual)-1].Date, interval)

	record := model.PerformanceRecord{
		TargetKey:   targetKey,
		Comparison:  comparison,
		Future:      future,
		GeneratedAt: now,
	}
	if mape, ok := evaluate.RecordMAPE(record); ok {
		record.MAPE = model.Float(mape)
	}
	return record, true
}

func buildFuture(fc model.ForecastResult, from int, lastActual time.Time, interval time.Duration) []model.FutureEntry {
	if len(fc.Values) <= from {
		return []model.FutureEntry{}
	}

	dates, ownDates := ForecastDates(fc)
	withBounds := len(fc.ConfidenceLower) == len(fc.Values) && len(fc.ConfidenceUpper) == len(fc.Values)

	future := make([]model.FutureEntry, 0, len(fc.Values)-from)
	for i := from; i < len(fc.Values); i++ {
		entry := model.FutureEntry{Predicted: model.Finite(fc.Values.At(i))}
		if ownDates {
			entry.Date = dates[i]
		} else {
			entry.Date = lastActual.Add(time.Duration(i-from+1) * interval)
		}
		if withBounds {
			entry.Lower = model.Finite(fc.ConfidenceLower[i])
			entry.Upper = model.Finite(fc.ConfidenceUpper[i])
		}
		future = append(future, entry)
	}
	return future
}

// ForecastDates parses the forecast's own date array. It reports false
// unless the array is parallel to Values and every entry parses.
func ForecastDates(fc model.ForecastResult) ([]time.Time, bool) {
	if len(fc.Dates) == 0 || len(fc.Dates) != len(fc.Values) {
		return nil, false
	}
	out := make([]time.Time, len(fc.Dates))
	for i, raw := range fc.Dates {
		t, ok := model.ParseDate(raw)
		if !ok {
			return nil, false
		}
		out[i] = t
	}
	return out, true
}
