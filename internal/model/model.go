package model

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Target types understood by the forecasting service.
const (
	TargetProduct  = "product"
	TargetCategory = "category"
)

// Target is a catalog item being forecast. Supplied by the catalog; read-only here.
type Target struct {
	ID            int64           `json:"id"`
	Type          string          `json:"type"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	AvgDailySales float64         `json:"avg_daily_sales"`
}

// Key identifies the target across caches, records and staleness tickets.
func (t Target) Key() string {
	kind := t.Type
	if kind == "" {
		kind = TargetProduct
	}
	return fmt.Sprintf("%s:%d", kind, t.ID)
}

// UnitMargin is price minus cost.
func (t Target) UnitMargin() decimal.Decimal {
	return t.UnitPrice.Sub(t.CostPrice)
}

// PriceSignature snapshots the prices a series was generated with.
func (t Target) PriceSignature() string {
	return t.UnitPrice.String() + "/" + t.CostPrice.String()
}

// DemandPoint is one bucket of demand. Immutable once produced.
type DemandPoint struct {
	Date         time.Time       `json:"date"`
	Sales        int64           `json:"sales"`
	Revenue      decimal.Decimal `json:"revenue"`
	Cost         decimal.Decimal `json:"cost"`
	Profit       decimal.Decimal `json:"profit"`
	ProfitMargin float64         `json:"profit_margin"`
	DemandLevel  string          `json:"demand_level,omitempty"`
	ProfitLevel  string          `json:"profit_level,omitempty"`
	Synthetic    bool            `json:"synthetic"`
}

// HistoricalPoint is a raw history row returned by the forecasting service.
type HistoricalPoint struct {
	Date     string   `json:"date"`
	Quantity float64  `json:"quantity"`
	Revenue  *float64 `json:"revenue,omitempty"`
	Cost     *float64 `json:"cost,omitempty"`
}

// ModelMetrics bundles the externally computed scores of one model.
type ModelMetrics struct {
	Accuracy *float64 `json:"accuracy,omitempty"`
	MAE      *float64 `json:"mae,omitempty"`
	RMSE     *float64 `json:"rmse,omitempty"`
	MAPE     *float64 `json:"mape,omitempty"`
}

// ForecastResult is produced by the external service and treated as opaque input.
type ForecastResult struct {
	Values          Values                  `json:"values"`
	Dates           []string                `json:"dates,omitempty"`
	ConfidenceLower Values                  `json:"confidence_lower,omitempty"`
	ConfidenceUpper Values                  `json:"confidence_upper,omitempty"`
	ModelType       string                  `json:"model_type"`
	Accuracy        *float64                `json:"accuracy,omitempty"`
	MAE             *float64                `json:"mae,omitempty"`
	RMSE            *float64                `json:"rmse,omitempty"`
	TrainedAt       *time.Time              `json:"trained_at,omitempty"`
	Comparison      map[string]ModelMetrics `json:"comparison,omitempty"`
	Message         string                  `json:"message,omitempty"`
}

// ComparisonEntry is one row of the backtest overlap window. Nil means gap.
type ComparisonEntry struct {
	Date      time.Time `json:"date"`
	Actual    *float64  `json:"actual"`
	Predicted *float64  `json:"predicted"`
}

// FutureEntry is a forecast value beyond the actual-data horizon.
type FutureEntry struct {
	Date      time.Time `json:"date"`
	Predicted *float64  `json:"predicted"`
	Lower     *float64  `json:"lower,omitempty"`
	Upper     *float64  `json:"upper,omitempty"`
}

// PerformanceRecord is the reconciled view for one target. Replaced wholesale, never merged.
type PerformanceRecord struct {
	TargetKey   string            `json:"target_key"`
	Comparison  []ComparisonEntry `json:"comparison"`
	Future      []FutureEntry     `json:"future"`
	MAPE        *float64          `json:"mape"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// MetricsBundle is what the presentation layer shows next to the chart.
type MetricsBundle struct {
	Model     string     `json:"model"`
	Accuracy  *float64   `json:"accuracy"`
	MAE       *float64   `json:"mae"`
	RMSE      *float64   `json:"rmse"`
	MAPE      *float64   `json:"mape"`
	TrainedAt *time.Time `json:"trained_at"`
}

// Finite returns a pointer to v, or nil when v is NaN or infinite.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
