package reconcile

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-forecast/internal/model"
)

var (
	start = time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	now   = time.Date(2025, time.April, 20, 12, 0, 0, 0, time.UTC)
)

func actualSeries(n int) []model.DemandPoint {
	points := make([]model.DemandPoint, n)
	for i := range points {
		points[i] = model.DemandPoint{Date: start.AddDate(0, 0, i), Sales: int64(10 + i)}
	}
	return points
}

func forecastOf(n int) model.ForecastResult {
	values := make(model.Values, n)
	for i := range values {
		values[i] = float64(10 + i)
	}
	return model.ForecastResult{Values: values, ModelType: "prophet"}
}

func TestReconcileSplitsComparisonAndFuture(t *testing.T) {
	actual := actualSeries(10)
	record, ok := Reconcile("product:1", actual, forecastOf(15), 24*time.Hour, now)
	require.True(t, ok)

	require.Len(t, record.Comparison, 10)
	require.Len(t, record.Future, 5)
	assert.Equal(t, "product:1", record.TargetKey)
	assert.Equal(t, now, record.GeneratedAt)

	last := actual[len(actual)-1].Date
	for k, entry := range record.Future {
		assert.Equal(t, last.AddDate(0, 0, k+1), entry.Date)
	}

	require.NotNil(t, record.MAPE)
	assert.Equal(t, 0.0, *record.MAPE)
}

func TestReconcileAlignsTailPositionally(t *testing.T) {
	actual := actualSeries(20)
	fc := model.ForecastResult{Values: model.Values{100, 200, 300}}

	record, ok := Reconcile("product:1", actual, fc, 24*time.Hour, now)
	require.True(t, ok)
	require.Len(t, record.Comparison, 3)
	assert.Empty(t, record.Future)

	// last three actual buckets pair with the first three forecast values
	assert.Equal(t, actual[17].Date, record.Comparison[0].Date)
	assert.Equal(t, 27.0, *record.Comparison[0].Actual)
	assert.Equal(t, 100.0, *record.Comparison[0].Predicted)
	assert.Equal(t, 300.0, *record.Comparison[2].Predicted)
}

func TestReconcileEmptyInputsProduceNothing(t *testing.T) {
	_, ok := Reconcile("product:1", nil, forecastOf(5), 24*time.Hour, now)
	assert.False(t, ok)

	_, ok = Reconcile("product:1", actualSeries(5), model.ForecastResult{}, 24*time.Hour, now)
	assert.False(t, ok)
}

func TestReconcileUsesOwnDatesAndBounds(t *testing.T) {
	fc := model.ForecastResult{
		Values:          model.Values{11, 12, 13, 14},
		Dates:           []string{"2025-05-01", "2025-05-02", "2025-05-03", "2025-05-10"},
		ConfidenceLower: model.Values{9, 10, 11, 12},
		ConfidenceUpper: model.Values{13, 14, 15, 16},
	}
	record, ok := Reconcile("product:1", actualSeries(2), fc, 24*time.Hour, now)
	require.True(t, ok)
	require.Len(t, record.Future, 2)

	assert.Equal(t, time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC), record.Future[0].Date)
	assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), record.Future[1].Date)
	assert.Equal(t, 11.0, *record.Future[0].Lower)
	assert.Equal(t, 16.0, *record.Future[1].Upper)
}

func TestReconcileIgnoresMalformedDates(t *testing.T) {
	fc := model.ForecastResult{
		Values: model.Values{1, 2, 3},
		Dates:  []string{"2025-05-01", "not a date", "2025-05-03"},
	}
	actual := actualSeries(1)
	record, ok := Reconcile("product:1", actual, fc, 24*time.Hour, now)
	require.True(t, ok)
	require.Len(t, record.Future, 2)
	assert.Equal(t, actual[0].Date.AddDate(0, 0, 1), record.Future[0].Date)

	fc.Dates = []string{"2025-05-01"}
	_, own := ForecastDates(fc)
	assert.False(t, own, "date array must be parallel to values")
}

func TestReconcileKeepsGaps(t *testing.T) {
	fc := model.ForecastResult{Values: model.Values{10, math.NaN(), 12, math.Inf(1)}}
	actual := actualSeries(3)

	record, ok := Reconcile("product:1", actual, fc, 24*time.Hour, now)
	require.True(t, ok)
	require.Len(t, record.Comparison, 3)
	assert.Nil(t, record.Comparison[1].Predicted, "missing value stays a gap")
	require.Len(t, record.Future, 1)
	assert.Nil(t, record.Future[0].Predicted)

	// pairs: (10,10) and (12,12); the gap is skipped rather than scored as zero
	require.NotNil(t, record.MAPE)
	assert.Equal(t, 0.0, *record.MAPE)
}

func TestReconcileHourlyInterval(t *testing.T) {
	actual := []model.DemandPoint{{Date: start, Sales: 1}}
	record, ok := Reconcile("product:1", actual, forecastOf(3), time.Hour, now)
	require.True(t, ok)
	require.Len(t, record.Future, 2)
	assert.Equal(t, start.Add(2*time.Hour), record.Future[1].Date)
}

func TestReconcileScoresComparisonWindow(t *testing.T) {
	// actuals 10 and 11 against 11 and 11: errors of 10% and 0%
	fc := model.ForecastResult{Values: model.Values{11, 11, 30}}
	record, ok := Reconcile("product:1", actualSeries(2), fc, 24*time.Hour, now)
	require.True(t, ok)
	require.NotNil(t, record.MAPE)
	assert.InDelta(t, 5.0, *record.MAPE, 1e-9)
	require.Len(t, record.Future, 1)
	assert.Equal(t, 30.0, *record.Future[0].Predicted)
}
