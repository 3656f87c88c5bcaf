// Package synth fabricates plausible demand history for targets without real point data.
package synth

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/prng"
)

const (
	restDayFactor    = 0.8
	monthlyAmplitude = 0.05
	seasonAmplitude  = 0.1
	trendGrowth      = 0.04
	noiseAmplitude   = 0.03
	smoothingWindow  = 3

	highRatio = 1.2
	lowRatio  = 0.8
)

// Demand and profit labels.
const (
	LevelHigh   = "high"
	LevelNormal = "normal"
	LevelLow    = "low"
)

// DemandRule maps name/category keywords to a default daily demand.
type DemandRule struct {
	Keywords []string
	Daily    float64
}

// DefaultDemand is consulted in order when a target reports no average sales.
var DefaultDemand = []DemandRule{
	{Keywords: []string{"tablet", "capsule"}, Daily: 15},
	{Keywords: []string{"syrup", "suspension"}, Daily: 8},
}

// FallbackDemand applies when no DefaultDemand rule matches.
const FallbackDemand = 5.0

// Options tune the synthesizer.
type Options struct {
	// Now anchors generated series; defaults to time.Now.
	Now func() time.Time
}

// Synthesizer keeps one advancing generator per seed, so repeated calls for
// the same target differ in their perturbation term. Stable series come from
// routing calls through the series cache.
type Synthesizer struct {
	mu      sync.Mutex
	streams map[int64]*prng.Generator
	now     func() time.Time
	logger  zerolog.Logger
}

// New constructs a Synthesizer.
func New(opts Options, logger zerolog.Logger) *Synthesizer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Synthesizer{
		streams: make(map[int64]*prng.Generator),
		now:     now,
		logger:  logger.With().Str("component", "synthesizer").Logger(),
	}
}

// Generate builds a synthetic series for target over tf.
func (s *Synthesizer) Generate(target model.Target, tf Timeframe) []model.DemandPoint {
	seed := prng.SeedFor(target)

	s.mu.Lock()
	defer s.mu.Unlock()

	gen, ok := s.streams[seed]
	if !ok {
		gen = prng.New(seed)
		s.streams[seed] = gen
	}

	anchor := tf.Anchor(s.now())
	points := Series(target, tf, anchor, gen.Func())

	s.logger.Debug().
		Str("target", target.Key()).
		Str("timeframe", string(tf)).
		Int("points", len(points)).
		Int("draws", gen.Draws()).
		Msg("synthesized demand series")
	return points
}

// Series is the pure synthesis step: anchor is the last bucket's date and
// next supplies the perturbation draws.
func Series(target model.Target, tf Timeframe, anchor time.Time, next func() float64) []model.DemandPoint {
	n := tf.Points()
	if n == 0 {
		return nil
	}

	interval := tf.Interval()
	base := EffectiveDemand(target) * tf.IntervalDays()
	subDaily := tf.IntervalDays() <= 1

	dates := make([]time.Time, n)
	raw := make([]float64, n)
	for i := 0; i < n; i++ {
		date := anchor.Add(-time.Duration(n-1-i) * interval)
		dates[i] = date

		m := monthlyEffect(date) * seasonalEffect(date) * trendEffect(i, n) * noiseEffect(next())
		if subDaily && date.Weekday() == time.Sunday {
			m *= restDayFactor
		}
		raw[i] = math.Round(math.Max(0, base*m))
	}

	smoothed := smooth(raw, smoothingWindow)

	expectedProfit := base * target.UnitMargin().InexactFloat64()
	points := make([]model.DemandPoint, n)
	for i, sales := range smoothed {
		points[i] = buildPoint(target, dates[i], int64(sales), base, expectedProfit)
	}
	return points
}

// EffectiveDemand returns the target's average daily sales, or a keyword-driven default.
func EffectiveDemand(target model.Target) float64 {
	if target.AvgDailySales > 0 && !math.IsInf(target.AvgDailySales, 0) {
		return target.AvgDailySales
	}
	haystack := strings.ToLower(target.Name + " " + target.Category)
	for _, rule := range DefaultDemand {
		for _, kw := range rule.Keywords {
			if strings.Contains(haystack, kw) {
				return rule.Daily
			}
		}
	}
	return FallbackDemand
}

func buildPoint(target model.Target, date time.Time, sales int64, base, expectedProfit float64) model.DemandPoint {
	qty := decimal.NewFromInt(sales)
	revenue := target.UnitPrice.Mul(qty)
	cost := target.CostPrice.Mul(qty)
	profit := revenue.Sub(cost)

	margin := 0.0
	if !revenue.IsZero() {
		margin = profit.Div(revenue).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	return model.DemandPoint{
		Date:         date,
		Sales:        sales,
		Revenue:      revenue,
		Cost:         cost,
		Profit:       profit,
		ProfitMargin: margin,
		DemandLevel:  level(float64(sales), base),
		ProfitLevel:  level(profit.InexactFloat64(), expectedProfit),
		Synthetic:    true,
	}
}

func level(value, reference float64) string {
	if reference <= 0 {
		return LevelNormal
	}
	switch ratio := value / reference; {
	case ratio >= highRatio:
		return LevelHigh
	case ratio <= lowRatio:
		return LevelLow
	default:
		return LevelNormal
	}
}

func monthlyEffect(d time.Time) float64 {
	week := float64((d.Day() - 1) / 7)
	return 1 + monthlyAmplitude*math.Sin(2*math.Pi*week/4)
}

func seasonalEffect(d time.Time) float64 {
	return 1 + seasonAmplitude*math.Sin(2*math.Pi*float64(d.Month()-1)/12)
}

func trendEffect(i, n int) float64 {
	if n <= 1 {
		return 1
	}
	return 1 + trendGrowth*float64(i)/float64(n-1)
}

func noiseEffect(r float64) float64 {
	return 1 + noiseAmplitude*(2*r-1)
}

// smooth applies a centered moving average; the window shrinks at the edges.
func smooth(raw []float64, window int) []float64 {
	half := window / 2
	out := make([]float64, len(raw))
	for i := range raw {
		lo := max(0, i-half)
		hi := min(len(raw), i+half+1)
		sum := 0.0
		for _, v := range raw[lo:hi] {
			sum += v
		}
		out[i] = math.Round(sum / float64(hi-lo))
	}
	return out
}
