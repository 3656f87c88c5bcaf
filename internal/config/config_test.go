package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-forecast/internal/synth"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pharmaforecast", cfg.App.Name)
	assert.Equal(t, synth.Day1, cfg.DefaultTimeframe())
	assert.Equal(t, 1500*time.Millisecond, cfg.Refresh.ManualMinInterval)
	assert.Equal(t, time.Minute, cfg.Refresh.BackgroundMinInterval)
	assert.Equal(t, 30, cfg.Refresh.HorizonDays)
	assert.Len(t, cfg.Retrain.Models, 3)
	assert.Equal(t, 7, cfg.Synth.RecentDays)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
synth:
  default_timeframe: 7d
refresh:
  interval: 10m
export:
  theme: dark
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("PHARMAFORECAST_RETRAIN_MODELS", "prophet,arima")
	t.Setenv("PHARMAFORECAST_FORECAST_API_BASE_URL", "http://forecast.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, synth.Day7, cfg.DefaultTimeframe())
	assert.Equal(t, 10*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, "dark", cfg.Export.Theme)
	assert.Equal(t, []string{"prophet", "arima"}, cfg.Retrain.Models)
	assert.Equal(t, "http://forecast.internal", cfg.ForecastAPI.BaseURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := valid()
	cfg.Synth.DefaultTimeframe = "2W"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Export.Theme = "neon"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Notices.Telegram.Enabled = true
	assert.Error(t, cfg.Validate(), "telegram without token")

	cfg = valid()
	cfg.Retrain.Models = nil
	assert.Error(t, cfg.Validate())
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100}}
	assert.Equal(t, 100, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 5, cfg.ResolveMaxPoints(5))
}
