package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPipeline_Defaults(t *testing.T) {
	t.Setenv("PIPELINE_CONFIG", "")
	cfg, err := LoadPipeline()
	require.NoError(t, err)

	assert.Equal(t, time.UTC.String(), cfg.Location().String())
	policy := cfg.AggregationPolicy()
	assert.Equal(t, 18, policy.PeakWindow.Start)
	assert.Equal(t, 23, policy.PeakWindow.End)
	assert.Equal(t, 0.20, policy.PeakRate)
	assert.Equal(t, 0.10, policy.OffPeakRate)
	assert.Equal(t, 7, cfg.StatsPeakWindow().Start)
	assert.Equal(t, 19, cfg.StatsPeakWindow().End)
	assert.Equal(t, 3, cfg.InsightLimit)
	assert.Equal(t, "*/15 * * * *", cfg.Schedule.Aggregator)
	assert.Equal(t, "0 0 * * *", cfg.Schedule.Insights)
	assert.Equal(t, 1000.0, cfg.Rules().EnergyThreshold)
}

func TestLoadPipeline_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Europe/Berlin
aggregation_peak:
  start_hour: 17
  end_hour: 21
tariff:
  peak_rate: 0.30
  electricity_price: 0.12
  grid_tariff: 0.05
insight_rules:
  energy_threshold_kwh: 50
schedule:
  aggregator: "*/5 * * * *"
  aggregator_timeout: 90s
`), 0o600))
	t.Setenv("PIPELINE_CONFIG", path)
	t.Setenv("TAXES_AND_FEES", "0.03")
	t.Setenv("PEAK_RATE", "0.35")

	cfg, err := LoadPipeline()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.Equal(t, 17, cfg.AggregationPolicy().PeakWindow.Start)
	assert.Equal(t, 0.35, cfg.Tariff.PeakRate)
	assert.Equal(t, 0.10, cfg.Tariff.OffPeakRate)
	assert.InDelta(t, 0.20, cfg.UnitPrice(), 1e-9)
	assert.Equal(t, 50.0, cfg.Rules().EnergyThreshold)
	assert.Equal(t, 5.0, cfg.Rules().EnergyWeight)
	assert.Equal(t, "*/5 * * * *", cfg.Schedule.Aggregator)
	assert.Equal(t, 90*time.Second, cfg.Schedule.AggregatorTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Schedule.InsightsTimeout)
}

func TestPipeline_ValidateRejectsBadInput(t *testing.T) {
	cfg := DefaultPipeline()
	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg = DefaultPipeline()
	cfg.AggregationPeak = HourWindow{StartHour: 20, EndHour: 20}
	assert.Error(t, cfg.Validate())

	cfg = DefaultPipeline()
	cfg.Tariff.OffPeakRate = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultPipeline()
	cfg.Schedule.Insights = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadPipeline_MissingFile(t *testing.T) {
	t.Setenv("PIPELINE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadPipeline()
	assert.Error(t, err)
}
