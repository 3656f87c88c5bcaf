package forecastapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/synth"
)

// ErrUnavailable wraps transport failures and 5xx responses from the service.
var ErrUnavailable = errors.New("forecast service unavailable")

// APIError is a non-retryable 4xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("forecast api error (%d)", e.Status)
	}
	return fmt.Sprintf("forecast api error (%d): %s", e.Status, e.Message)
}

// Category is a catalog grouping that can itself be forecast.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TrainedModel describes a model the service has fitted for a target.
type TrainedModel struct {
	TargetType string     `json:"target_type"`
	TargetID   int64      `json:"target_id"`
	ModelType  string     `json:"model_type"`
	Accuracy   *float64   `json:"accuracy,omitempty"`
	TrainedAt  *time.Time `json:"trained_at,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler with a lenient trained_at.
func (m *TrainedModel) UnmarshalJSON(data []byte) error {
	type plain TrainedModel
	aux := struct {
		*plain
		TrainedAt json.RawMessage `json:"trained_at,omitempty"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.TrainedAt = model.LenientTime(aux.TrainedAt)
	return nil
}

// AccuracySummary aggregates accuracy across trained targets.
type AccuracySummary struct {
	AverageAccuracy *float64                      `json:"average_accuracy,omitempty"`
	TrainedTargets  int                           `json:"trained_targets"`
	Models          map[string]model.ModelMetrics `json:"models,omitempty"`
}

// Service is the forecasting/catalog collaborator consumed by the engine.
type Service interface {
	ListTargets(ctx context.Context) ([]model.Target, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ListTrainedModels(ctx context.Context) ([]TrainedModel, error)
	GetAccuracySummary(ctx context.Context) (AccuracySummary, error)
	GetHistoricalSeries(ctx context.Context, target model.Target, tf synth.Timeframe) ([]model.HistoricalPoint, error)
	GetForecast(ctx context.Context, target model.Target, horizonDays int) (model.ForecastResult, error)
	TrainModel(ctx context.Context, target model.Target, models []string) (model.ForecastResult, error)
}
