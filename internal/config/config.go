package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/defaults.json"

// Config is the root configuration for the estimator, the forecaster and
// the weekly TDEE job. Every field is optional; the Get* accessors fall
// back to built-in defaults so partial files are safe.
type Config struct {
	// Estimator params
	InitialTDEE      *float64 `json:"initial_tdee,omitempty"`
	InitialVariance  *float64 `json:"initial_variance,omitempty"`
	ProcessNoise     *float64 `json:"process_noise,omitempty"`
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`

	// Forecast params
	DaysAhead       *int     `json:"days_ahead,omitempty"`
	ConfidenceLevel *float64 `json:"confidence_level,omitempty"`
	ForecastTimeout *string  `json:"forecast_timeout,omitempty"` // duration string like "10s"

	// Weekly job params
	JobInterval  *string `json:"job_interval,omitempty"` // duration string like "168h"
	LookbackDays *int    `json:"lookback_days,omitempty"`
	MinRecords   *int    `json:"min_records,omitempty"`
	JobWorkers   *int    `json:"job_workers,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all fields set to nil.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field populated from the
// built-in defaults.
func DefaultConfig() *Config {
	c := EmptyConfig()
	return &Config{
		InitialTDEE:      ptrFloat64(c.GetInitialTDEE()),
		InitialVariance:  ptrFloat64(c.GetInitialVariance()),
		ProcessNoise:     ptrFloat64(c.GetProcessNoise()),
		MeasurementNoise: ptrFloat64(c.GetMeasurementNoise()),
		DaysAhead:        ptrInt(c.GetDaysAhead()),
		ConfidenceLevel:  ptrFloat64(c.GetConfidenceLevel()),
		ForecastTimeout:  ptrString(c.GetForecastTimeout().String()),
		JobInterval:      ptrString(c.GetJobInterval().String()),
		LookbackDays:     ptrInt(c.GetLookbackDays()),
		MinRecords:       ptrInt(c.GetMinRecords()),
		JobWorkers:       ptrInt(c.GetJobWorkers()),
	}
}

// LoadConfig loads a Config from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/forecast-plot/
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.InitialTDEE != nil && !(*c.InitialTDEE > 0) {
		return fmt.Errorf("initial_tdee must be positive, got %f", *c.InitialTDEE)
	}
	if c.InitialVariance != nil && !(*c.InitialVariance >= 0) {
		return fmt.Errorf("initial_variance must be non-negative, got %f", *c.InitialVariance)
	}
	if c.ProcessNoise != nil && !(*c.ProcessNoise >= 0) {
		return fmt.Errorf("process_noise must be non-negative, got %f", *c.ProcessNoise)
	}
	if c.MeasurementNoise != nil && !(*c.MeasurementNoise > 0) {
		return fmt.Errorf("measurement_noise must be positive, got %f", *c.MeasurementNoise)
	}

	if c.DaysAhead != nil && *c.DaysAhead < 1 {
		return fmt.Errorf("days_ahead must be at least 1, got %d", *c.DaysAhead)
	}
	if c.ConfidenceLevel != nil {
		level := *c.ConfidenceLevel
		if math.IsNaN(level) || level <= 0 || level >= 1 {
			return fmt.Errorf("confidence_level must be in (0, 1), got %f", level)
		}
	}

	if c.ForecastTimeout != nil && *c.ForecastTimeout != "" {
		if _, err := time.ParseDuration(*c.ForecastTimeout); err != nil {
			return fmt.Errorf("invalid forecast_timeout '%s': %w", *c.ForecastTimeout, err)
		}
	}
	if c.JobInterval != nil && *c.JobInterval != "" {
		d, err := time.ParseDuration(*c.JobInterval)
		if err != nil {
			return fmt.Errorf("invalid job_interval '%s': %w", *c.JobInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("job_interval must be positive, got %s", *c.JobInterval)
		}
	}

	if c.LookbackDays != nil && *c.LookbackDays < 1 {
		return fmt.Errorf("lookback_days must be at least 1, got %d", *c.LookbackDays)
	}
	if c.MinRecords != nil && *c.MinRecords < 1 {
		return fmt.Errorf("min_records must be at least 1, got %d", *c.MinRecords)
	}
	if c.JobWorkers != nil && *c.JobWorkers < 1 {
		return fmt.Errorf("job_workers must be at least 1, got %d", *c.JobWorkers)
	}

	return nil
}

// GetInitialTDEE returns the initial_tdee value or the default.
func (c *Config) GetInitialTDEE() float64 {
	if c.InitialTDEE == nil {
		return 2000
	}
	return *c.InitialTDEE
}

// GetInitialVariance returns the initial_variance value or the default.
func (c *Config) GetInitialVariance() float64 {
	if c.InitialVariance == nil {
		return 10000
	}
	return *c.InitialVariance
}

// GetProcessNoise returns the process_noise value or the default.
func (c *Config) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return 50.0
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *Config) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 0.01
	}
	return *c.MeasurementNoise
}

// GetDaysAhead returns the days_ahead value or the default.
func (c *Config) GetDaysAhead() int {
	if c.DaysAhead == nil {
		return 30
	}
	return *c.DaysAhead
}

// GetConfidenceLevel returns the confidence_level value or the default.
func (c *Config) GetConfidenceLevel() float64 {
	if c.ConfidenceLevel == nil {
		return 0.95
	}
	return *c.ConfidenceLevel
}

// GetForecastTimeout parses and returns ForecastTimeout as a time.Duration.
func (c *Config) GetForecastTimeout() time.Duration {
	if c.ForecastTimeout == nil || *c.ForecastTimeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.ForecastTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetJobInterval parses and returns JobInterval as a time.Duration.
func (c *Config) GetJobInterval() time.Duration {
	if c.JobInterval == nil || *c.JobInterval == "" {
		return 7 * 24 * time.Hour
	}
	d, err := time.ParseDuration(*c.JobInterval)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// GetLookbackDays returns the lookback_days value or the default.
func (c *Config) GetLookbackDays() int {
	if c.LookbackDays == nil {
		return 14
	}
	return *c.LookbackDays
}

// GetMinRecords returns the min_records value or the default.
func (c *Config) GetMinRecords() int {
	if c.MinRecords == nil {
		return 3
	}
	return *c.MinRecords
}

// GetJobWorkers returns the job_workers value or the default.
func (c *Config) GetJobWorkers() int {
	if c.JobWorkers == nil {
		return 4
	}
	return *c.JobWorkers
}
