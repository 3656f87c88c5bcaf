package synth

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"pharmacy-forecast/internal/model"
)

// FromHistory converts service history rows into demand points. Rows with an
// unparseable date or a non-finite quantity are dropped; the result is sorted
// by date. Levels are relative to the mean of the converted series.
func FromHistory(target model.Target, rows []model.HistoricalPoint) []model.DemandPoint {
	points := make([]model.DemandPoint, 0, len(rows))
	total := 0.0
	for _, row := range rows {
		date, ok := model.ParseDate(row.Date)
		if !ok || math.IsNaN(row.Quantity) || math.IsInf(row.Quantity, 0) {
			continue
		}
		sales := int64(math.Max(0, math.Round(row.Quantity)))
		total += float64(sales)

		p := buildPoint(target, date, sales, 0, 0)
		p.Synthetic = false
		if row.Revenue != nil && finite(*row.Revenue) {
			p.Revenue = decimal.NewFromFloat(*row.Revenue)
		}
		if row.Cost != nil && finite(*row.Cost) {
			p.Cost = decimal.NewFromFloat(*row.Cost)
		}
		p.Profit = p.Revenue.Sub(p.Cost)
		p.ProfitMargin = 0
		if !p.Revenue.IsZero() {
			p.ProfitMargin = p.Profit.Div(p.Revenue).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	meanSales := total / float64(len(points))
	meanProfit := 0.0
	for _, p := range points {
		meanProfit += p.Profit.InexactFloat64()
	}
	meanProfit /= float64(len(points))
	for i := range points {
		points[i].DemandLevel = level(float64(points[i].Sales), meanSales)
		points[i].ProfitLevel = level(points[i].Profit.InexactFloat64(), meanProfit)
	}
	return points
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
