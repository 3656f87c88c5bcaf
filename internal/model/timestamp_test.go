package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2025-01-02":                       time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		"2025-01-02T03:04:05Z":             time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		"2025-01-02T05:04:05+02:00":        time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		"2025-01-02T03:04:05.5":            time.Date(2025, 1, 2, 3, 4, 5, 500000000, time.UTC),
		" 2025-01-02 03:04:05 ":            time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		"2025-01-02T03:04:05.123456+00:00": time.Date(2025, 1, 2, 3, 4, 5, 123456000, time.UTC),
	}
	for raw, want := range cases {
		got, ok := ParseDate(raw)
		require.True(t, ok, raw)
		assert.True(t, got.Equal(want), "%s parsed as %s", raw, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	_, ok := ParseDate("02/01/2025")
	assert.False(t, ok)
}

func TestLenientTime(t *testing.T) {
	assert.Nil(t, LenientTime(nil))
	assert.Nil(t, LenientTime(json.RawMessage(`null`)))
	assert.Nil(t, LenientTime(json.RawMessage(`42`)))
	assert.Nil(t, LenientTime(json.RawMessage(`"soon"`)))
	require.NotNil(t, LenientTime(json.RawMessage(`"2025-01-01T12:00:00.123456"`)))
}

func TestForecastResultDropsBadTrainedAt(t *testing.T) {
	var fc ForecastResult
	require.NoError(t, json.Unmarshal([]byte(`{"values":[1,null],"model_type":"arima","trained_at":"not a time"}`), &fc))
	assert.Nil(t, fc.TrainedAt)
	assert.Equal(t, "arima", fc.ModelType)
	assert.Len(t, fc.Values, 2)

	require.NoError(t, json.Unmarshal([]byte(`{"values":[1],"trained_at":"2025-01-01T12:00:00Z"}`), &fc))
	require.NotNil(t, fc.TrainedAt)
	assert.Equal(t, 2025, fc.TrainedAt.Year())
}
