package tdee

import (
	"math"

	"github.com/banshee-data/calorie.report/internal/config"
	"github.com/banshee-data/calorie.report/internal/stats"
)

// Physical and physiological constants.
const (
	// KcalPerKg is the energy equivalent of one kilogram of body mass change.
	KcalPerKg = 7700.0
	// MinTDEE and MaxTDEE bound every estimate produced by Update.
	MinTDEE = 500.0
	MaxTDEE = 10000.0
)

// Defaults for the optional constructor parameters.
const (
	DefaultInitialVariance  = 10000.0
	DefaultProcessNoise     = 50.0
	DefaultMeasurementNoise = 0.01
)

// Config holds the estimator's construction parameters.
type Config struct {
	InitialTDEE      float64 // kcal/day, > 0
	InitialVariance  float64 // (kcal/day)², >= 0
	ProcessNoise     float64 // week-to-week metabolic drift, >= 0
	MeasurementNoise float64 // variance of the weight-change measurement (kg²), > 0
}

// DefaultConfig returns a Config with the default noise parameters.
func DefaultConfig(initialTDEE float64) Config {
	return Config{
		InitialTDEE:      initialTDEE,
		InitialVariance:  DefaultInitialVariance,
		ProcessNoise:     DefaultProcessNoise,
		MeasurementNoise: DefaultMeasurementNoise,
	}
}

// ConfigFromTuning builds a Config from a loaded config file.
func ConfigFromTuning(cfg *config.Config) Config {
	return Config{
		InitialTDEE:      cfg.GetInitialTDEE(),
		InitialVariance:  cfg.GetInitialVariance(),
		ProcessNoise:     cfg.GetProcessNoise(),
		MeasurementNoise: cfg.GetMeasurementNoise(),
	}
}

func (c Config) validate() error {
	if !isPositive(c.InitialTDEE) {
		return stats.Invalidf("initial_tdee", "must be positive, got %v", c.InitialTDEE)
	}
	if !isNonNegative(c.InitialVariance) {
		return stats.Invalidf("initial_variance", "must be non-negative, got %v", c.InitialVariance)
	}
	if !isNonNegative(c.ProcessNoise) {
		return stats.Invalidf("process_noise", "must be non-negative, got %v", c.ProcessNoise)
	}
	if !isPositive(c.MeasurementNoise) {
		return stats.Invalidf("measurement_noise", "must be positive, got %v", c.MeasurementNoise)
	}
	return nil
}

// KalmanState is the filter's belief about one profile's TDEE.
type KalmanState struct {
	TDEEEstimate     float64  // kcal/day
	Variance         float64  // (kcal/day)²
	PreviousWeightKg *float64 // nil until the first observation
}

// Estimator is a scalar Kalman filter over TDEE.
type Estimator struct {
	cfg   Config
	state KalmanState
}

// NewEstimator returns an estimator whose state starts at cfg.InitialTDEE
// and cfg.InitialVariance with no previous weight.
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Estimator{
		cfg: cfg,
		state: KalmanState{
			TDEEEstimate: cfg.InitialTDEE,
			Variance:     cfg.InitialVariance,
		},
	}, nil
}

// RestoreEstimator rebuilds an estimator from a previously persisted state.
// Noise parameters come from cfg; cfg.InitialTDEE and cfg.InitialVariance
// are ignored.
func RestoreEstimator(cfg Config, state KalmanState) (*Estimator, error) {
	cfg.InitialTDEE = state.TDEEEstimate
	cfg.InitialVariance = state.Variance
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if state.PreviousWeightKg != nil && !isPositive(*state.PreviousWeightKg) {
		return nil, stats.Invalidf("previous_weight_kg", "must be positive, got %v", *state.PreviousWeightKg)
	}
	e := &Estimator{cfg: cfg, state: state}
	if state.PreviousWeightKg != nil {
		w := *state.PreviousWeightKg
		e.state.PreviousWeightKg = &w
	}
	return e, nil
}

// Update folds one (weight, consumed calories) observation into the
// estimate and returns the new TDEE.
//
// The first observation only records the weight: a single point cannot
// establish a trend. Inputs are validated before any state changes.
func (e *Estimator) Update(weightKg, consumedCalories float64) (float64, error) {
	if !isPositive(weightKg) {
		return 0, stats.Invalidf("weight_kg", "must be positive, got %v", weightKg)
	}
	if !isNonNegative(consumedCalories) {
		return 0, stats.Invalidf("consumed_calories", "must be non-negative, got %v", consumedCalories)
	}

	if e.state.PreviousWeightKg == nil {
		w := weightKg
		e.state.PreviousWeightKg = &w
		return e.state.TDEEEstimate, nil
	}

	// Measurement: observed weight change vs. change implied by the energy balance.
	predictedChange := (consumedCalories - e.state.TDEEEstimate) / KcalPerKg
	actualChange := weightKg - *e.state.PreviousWeightKg
	innovation := actualChange - predictedChange

	predictedVariance := e.state.Variance + e.cfg.ProcessNoise
	gain := predictedVariance / (predictedVariance + e.cfg.MeasurementNoise)

	// Losing more than predicted (negative innovation) means a higher burn rate.
	tdee := e.state.TDEEEstimate - innovation*KcalPerKg*gain
	variance := (1 - gain) * predictedVariance

	e.state.TDEEEstimate = clampTDEE(tdee)
	e.state.Variance = math.Max(variance, 0)
	w := weightKg
	e.state.PreviousWeightKg = &w

	return e.state.TDEEEstimate, nil
}

// Estimate returns the current TDEE and its standard deviation.
func (e *Estimator) Estimate() (tdee, stdDev float64) {
	return e.state.TDEEEstimate, math.Sqrt(e.state.Variance)
}

// ConfidenceInterval returns the symmetric interval tdee ± z·σ for level.
func (e *Estimator) ConfidenceInterval(level float64) (lower, upper float64, err error) {
	z, err := stats.ZScore(level)
	if err != nil {
		return 0, 0, err
	}
	tdee, sd := e.Estimate()
	return tdee - z*sd, tdee + z*sd, nil
}

// Reset replaces the estimate and variance and forgets the previous weight,
// so the next Update bootstraps again.
func (e *Estimator) Reset(newTDEE, newVariance float64) error {
	if !isPositive(newTDEE) {
		return stats.Invalidf("new_tdee", "must be positive, got %v", newTDEE)
	}
	if !isNonNegative(newVariance) {
		return stats.Invalidf("new_variance", "must be non-negative, got %v", newVariance)
	}
	e.state = KalmanState{TDEEEstimate: newTDEE, Variance: newVariance}
	return nil
}

// State returns a copy of the current filter state.
func (e *Estimator) State() KalmanState {
	s := e.state
	if s.PreviousWeightKg != nil {
		w := *s.PreviousWeightKg
		s.PreviousWeightKg = &w
	}
	return s
}

// Config returns the parameters the estimator was built with.
func (e *Estimator) Config() Config {
	return e.cfg
}

func clampTDEE(v float64) float64 {
	return math.Max(MinTDEE, math.Min(MaxTDEE, v))
}

func isPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func isNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
