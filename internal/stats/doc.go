// Package stats holds the small statistical helpers shared by the TDEE
// estimator and the weight forecaster: standard-normal z-scores for
// symmetric confidence intervals, trend classification of a forecast
// trajectory, and the validation error type every caller-facing
// operation returns.
//
// Everything here is a pure function with no package state.
package stats
