// Package evaluate scores forecasts and picks the best candidate model.
package evaluate

import (
	"math"

	"pharmacy-forecast/internal/model"
)

// ComputeMAPE returns the mean absolute percentage error over the pairs that
// can be scored. Pairs with a zero actual or a non-finite side are skipped.
// It reports false when no pair qualifies.
func ComputeMAPE(actual, predicted []float64) (float64, bool) {
	n := min(len(actual), len(predicted))
	sum := 0.0
	valid := 0
	for i := 0; i < n; i++ {
		a, p := actual[i], predicted[i]
		if a == 0 || !finite(a) || !finite(p) {
			continue
		}
		sum += math.Abs(a-p) / math.Abs(a)
		valid++
	}
	if valid == 0 {
		return 0, false
	}
	return sum / float64(valid) * 100, true
}

// RecordMAPE recomputes MAPE from a record's comparison window.
func RecordMAPE(record model.PerformanceRecord) (float64, bool) {
	actual := make([]float64, len(record.Comparison))
	predicted := make([]float64, len(record.Comparison))
	for i, entry := range record.Comparison {
		actual[i] = deref(entry.Actual)
		predicted[i] = deref(entry.Predicted)
	}
	return ComputeMAPE(actual, predicted)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func deref(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
