package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-forecast/internal/model"
)

func TestUnconfiguredStore(t *testing.T) {
	var s *Store
	ctx := context.Background()

	assert.True(t, errors.Is(s.UpsertPerformance(ctx, PerformanceSnapshot{}), ErrNotConfigured))
	_, err := s.GetPerformance(ctx, "product:1", "1D")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.InsertTrainingRun(ctx, TrainingRun{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, _, err = s.TryAdvisoryLock(ctx, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, s.Migrate(ctx), ErrNotConfigured)
	s.Close()
}

func TestSnapshotRoundTripKeepsGaps(t *testing.T) {
	generated := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	record := model.PerformanceRecord{
		TargetKey: "product:9",
		Comparison: []model.ComparisonEntry{
			{Date: generated, Actual: model.Float(10), Predicted: nil},
		},
		Future: []model.FutureEntry{
			{Date: generated.AddDate(0, 0, 1), Predicted: model.Float(11), Lower: model.Float(9)},
		},
		MAPE:        model.Float(4.2),
		GeneratedAt: generated,
	}
	bundle := model.MetricsBundle{Model: "prophet", Accuracy: model.Float(0.9)}

	snap, err := NewSnapshot(record, "1D", bundle)
	require.NoError(t, err)
	assert.Equal(t, "prophet", snap.ModelType)
	assert.Equal(t, "1D", snap.Timeframe)

	back, err := snap.Record()
	require.NoError(t, err)
	assert.Equal(t, record.TargetKey, back.TargetKey)
	require.Len(t, back.Comparison, 1)
	assert.Nil(t, back.Comparison[0].Predicted)
	assert.True(t, back.Future[0].Date.Equal(record.Future[0].Date))
	assert.Nil(t, back.Future[0].Upper)
	assert.Equal(t, 4.2, *back.MAPE)
}

func TestJSONOrEmpty(t *testing.T) {
	assert.Equal(t, "[]", string(jsonOrEmpty(nil)))
	assert.Equal(t, `[1]`, string(jsonOrEmpty([]byte(`[1]`))))
}
