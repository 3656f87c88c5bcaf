package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"pharmacy-forecast/internal/model"
)

// Training run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// PerformanceSnapshot is a persisted PerformanceRecord plus the metrics shown beside it.
type PerformanceSnapshot struct {
	TargetKey   string
	Timeframe   string
	ModelType   string
	MAPE        *float64
	Accuracy    *float64
	Comparison  []byte
	Future      []byte
	GeneratedAt time.Time
	UpdatedAt   time.Time
}

// TrainingRun audits one retrain attempt.
type TrainingRun struct {
	ID         int64
	TargetKey  string
	Models     []string
	ModelType  string
	Status     string
	Error      *string
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewSnapshot encodes a record for persistence.
func NewSnapshot(record model.PerformanceRecord, timeframe string, bundle model.MetricsBundle) (PerformanceSnapshot, error) {
	comparison, err := json.Marshal(record.Comparison)
	if err != nil {
		return PerformanceSnapshot{}, fmt.Errorf("encode comparison: %w", err)
	}
	future, err := json.Marshal(record.Future)
	if err != nil {
		return PerformanceSnapshot{}, fmt.Errorf("encode future: %w", err)
	}
	return PerformanceSnapshot{
		TargetKey:   record.TargetKey,
		Timeframe:   timeframe,
		ModelType:   bundle.Model,
		MAPE:        record.MAPE,
		Accuracy:    bundle.Accuracy,
		Comparison:  comparison,
		Future:      future,
		GeneratedAt: record.GeneratedAt,
	}, nil
}

// Record decodes the snapshot back into a PerformanceRecord.
func (s PerformanceSnapshot) Record() (model.PerformanceRecord, error) {
	record := model.PerformanceRecord{
		TargetKey:   s.TargetKey,
		MAPE:        s.MAPE,
		GeneratedAt: s.GeneratedAt,
	}
	if len(s.Comparison) > 0 {
		if err := json.Unmarshal(s.Comparison, &record.Comparison); err != nil {
			return model.PerformanceRecord{}, fmt.Errorf("decode comparison: %w", err)
		}
	}
	if len(s.Future) > 0 {
		if err := json.Unmarshal(s.Future, &record.Future); err != nil {
			return model.PerformanceRecord{}, fmt.Errorf("decode future: %w", err)
		}
	}
	return record, nil
}
