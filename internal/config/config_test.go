package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyConfig()

	if cfg.GetInitialTDEE() != 2000 {
		t.Errorf("GetInitialTDEE() = %f, want 2000", cfg.GetInitialTDEE())
	}
	if cfg.GetInitialVariance() != 10000 {
		t.Errorf("GetInitialVariance() = %f, want 10000", cfg.GetInitialVariance())
	}
	if cfg.GetProcessNoise() != 50.0 {
		t.Errorf("GetProcessNoise() = %f, want 50", cfg.GetProcessNoise())
	}
	if cfg.GetMeasurementNoise() != 0.01 {
		t.Errorf("GetMeasurementNoise() = %f, want 0.01", cfg.GetMeasurementNoise())
	}
	if cfg.GetDaysAhead() != 30 {
		t.Errorf("GetDaysAhead() = %d, want 30", cfg.GetDaysAhead())
	}
	if cfg.GetConfidenceLevel() != 0.95 {
		t.Errorf("GetConfidenceLevel() = %f, want 0.95", cfg.GetConfidenceLevel())
	}
	if cfg.GetJobInterval() != 7*24*time.Hour {
		t.Errorf("GetJobInterval() = %v, want 168h", cfg.GetJobInterval())
	}
	if cfg.GetLookbackDays() != 14 || cfg.GetMinRecords() != 3 || cfg.GetJobWorkers() != 4 {
		t.Errorf("unexpected job defaults: lookback=%d min=%d workers=%d",
			cfg.GetLookbackDays(), cfg.GetMinRecords(), cfg.GetJobWorkers())
	}
	if cfg.GetForecastTimeout() != 10*time.Second {
		t.Errorf("GetForecastTimeout() = %v, want 10s", cfg.GetForecastTimeout())
	}
}

func TestDefaultConfigPopulatesEveryField(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.NotNil(t, cfg.InitialTDEE)
	assert.NotNil(t, cfg.ForecastTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.GetJobInterval())
	assert.Equal(t, 10*time.Second, cfg.GetForecastTimeout())
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "initial_tdee": 2400,
  "process_noise": 25,
  "days_ahead": 7,
  "confidence_level": 0.8,
  "job_interval": "24h"
}`
	require.NoError(t, os.WriteFile(configPath, []byte(testJSON), 0644))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 2400.0, cfg.GetInitialTDEE())
	assert.Equal(t, 25.0, cfg.GetProcessNoise())
	assert.Equal(t, 7, cfg.GetDaysAhead())
	assert.Equal(t, 0.8, cfg.GetConfidenceLevel())
	assert.Equal(t, 24*time.Hour, cfg.GetJobInterval())

	// omitted fields keep defaults
	assert.Equal(t, 10000.0, cfg.GetInitialVariance())
	assert.Equal(t, 0.01, cfg.GetMeasurementNoise())
}

func TestLoadConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("cfg.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "nope.json"), "failed to stat"},
		{"bad json", write("bad.json", "{not json"), "failed to parse"},
		{"zero tdee", write("tdee.json", `{"initial_tdee": 0}`), "initial_tdee"},
		{"negative variance", write("var.json", `{"initial_variance": -1}`), "initial_variance"},
		{"zero measurement noise", write("mn.json", `{"measurement_noise": 0}`), "measurement_noise"},
		{"confidence of one", write("cl.json", `{"confidence_level": 1}`), "confidence_level"},
		{"days ahead zero", write("da.json", `{"days_ahead": 0}`), "days_ahead"},
		{"bad interval", write("iv.json", `{"job_interval": "weekly"}`), "job_interval"},
		{"bad timeout", write("to.json", `{"forecast_timeout": "soon"}`), "forecast_timeout"},
		{"zero workers", write("wk.json", `{"job_workers": 0}`), "job_workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.path)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q should mention %q", err, tt.wantErr)
		})
	}
}

func TestLoadConfigTooLarge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	require.NoError(t, os.WriteFile(p, big, 0644))

	_, err := LoadConfig(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	assert.Equal(t, 2000.0, cfg.GetInitialTDEE())
	assert.Equal(t, 30, cfg.GetDaysAhead())
	assert.Equal(t, 0.95, cfg.GetConfidenceLevel())
}
