package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ValidateConfidenceLevel rejects levels outside the open interval (0, 1).
func ValidateConfidenceLevel(level float64) error {
	if math.IsNaN(level) || level <= 0 || level >= 1 {
		return Invalidf("confidence_level", "must be in (0, 1), got %v", level)
	}
	return nil
}

// ZScore returns the two-sided standard-normal quantile for the given
// confidence level, i.e. the inverse CDF evaluated at (1+level)/2.
//
//	ZScore(0.95) ≈ 1.959964
//	ZScore(0.68) ≈ 0.994458
func ZScore(level float64) (float64, error) {
	if err := ValidateConfidenceLevel(level); err != nil {
		return 0, err
	}
	return distuv.UnitNormal.Quantile((1 + level) / 2), nil
}

// StdDev is the unbiased sample standard deviation of xs, or 0 when
// fewer than two values are supplied.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sd := stat.StdDev(xs, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}
