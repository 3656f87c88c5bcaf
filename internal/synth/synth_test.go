package synth

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/prng"
)

var fixedNow = time.Date(2025, time.March, 14, 15, 37, 0, 0, time.UTC)

func testTarget() model.Target {
	return model.Target{
		ID:            101,
		Type:          model.TargetProduct,
		Name:          "Paracetamol 500mg Tablet",
		UnitPrice:     decimal.RequireFromString("4.50"),
		CostPrice:     decimal.RequireFromString("3.00"),
		AvgDailySales: 40,
	}
}

func TestTimeframePoints(t *testing.T) {
	cases := map[Timeframe]int{
		Hour1:  48,
		Hour4:  42,
		Day1:   30,
		Day7:   13,
		Month1: 13,
		Month3: 9,
		Year1:  5,
	}
	for tf, want := range cases {
		assert.Equal(t, want, tf.Points(), "timeframe %s", tf)
	}
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 1d ")
	require.NoError(t, err)
	assert.Equal(t, Day1, tf)

	_, err = ParseTimeframe("2W")
	assert.ErrorIs(t, err, ErrUnknownTimeframe)
}

func TestSeriesShapeAndDates(t *testing.T) {
	anchor := Day1.Anchor(fixedNow)
	points := Series(testTarget(), Day1, anchor, prng.New(1).Float64)

	require.Len(t, points, 30)
	assert.Equal(t, anchor, points[len(points)-1].Date)
	for i := 1; i < len(points); i++ {
		assert.Equal(t, 24*time.Hour, points[i].Date.Sub(points[i-1].Date))
	}
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Sales, int64(0))
		assert.True(t, p.Synthetic)
		assert.True(t, p.Revenue.Equal(decimal.RequireFromString("4.50").Mul(decimal.NewFromInt(p.Sales))))
		assert.True(t, p.Profit.Equal(p.Revenue.Sub(p.Cost)))
		if p.Sales > 0 {
			assert.InDelta(t, 33.333, p.ProfitMargin, 0.01)
		}
	}
}

func TestSeriesStaysNearAverage(t *testing.T) {
	points := Series(testTarget(), Day1, Day1.Anchor(fixedNow), prng.New(3).Float64)
	for _, p := range points {
		// rest day, season, month cycle, trend and noise together stay well within ±40%
		assert.InDelta(t, 40, float64(p.Sales), 16, "date %s", p.Date)
	}
}

func TestSubDailyBucketsScaleDemand(t *testing.T) {
	points := Series(testTarget(), Hour1, Hour1.Anchor(fixedNow), prng.New(5).Float64)
	require.Len(t, points, 48)
	assert.Equal(t, time.Hour, points[1].Date.Sub(points[0].Date))
	for _, p := range points {
		assert.LessOrEqual(t, p.Sales, int64(3), "hourly bucket should carry roughly 40/24 units")
	}
}

func TestSmoothingShrinksAtEdges(t *testing.T) {
	out := smooth([]float64{10, 20, 60, 20}, 3)
	assert.Equal(t, []float64{15, 30, 33, 40}, out)
}

func TestEffectiveDemandFallbacks(t *testing.T) {
	assert.Equal(t, 15.0, EffectiveDemand(model.Target{Name: "Amoxicillin Capsule"}))
	assert.Equal(t, 8.0, EffectiveDemand(model.Target{Name: "Cough Syrup 100ml"}))
	assert.Equal(t, 8.0, EffectiveDemand(model.Target{Name: "Kids", Category: "Suspension"}))
	assert.Equal(t, FallbackDemand, EffectiveDemand(model.Target{Name: "Bandage"}))
	assert.Equal(t, 2.5, EffectiveDemand(model.Target{Name: "Bandage", AvgDailySales: 2.5}))
}

func TestZeroAverageStillProducesDemand(t *testing.T) {
	target := testTarget()
	target.AvgDailySales = 0
	points := Series(target, Day1, Day1.Anchor(fixedNow), prng.New(9).Float64)

	var total int64
	for _, p := range points {
		total += p.Sales
	}
	assert.Greater(t, total, int64(0), "zero average sales must not yield an empty series")
}

func TestDirectCallsDivergeOnlyInValues(t *testing.T) {
	s := New(Options{Now: func() time.Time { return fixedNow }}, zerolog.Nop())

	first := s.Generate(testTarget(), Day1)
	second := s.Generate(testTarget(), Day1)

	require.Len(t, second, len(first))
	assert.Equal(t, first[0].Date, second[0].Date)
	assert.Equal(t, first[len(first)-1].Date, second[len(second)-1].Date)

	differs := false
	for i := range first {
		if first[i].Sales != second[i].Sales {
			differs = true
		}
	}
	assert.True(t, differs, "advancing generator should perturb at least one bucket")
}

func TestLevels(t *testing.T) {
	assert.Equal(t, LevelHigh, level(12, 10))
	assert.Equal(t, LevelLow, level(8, 10))
	assert.Equal(t, LevelNormal, level(10, 10))
	assert.Equal(t, LevelNormal, level(5, 0))
}
