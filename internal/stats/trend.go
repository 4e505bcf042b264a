package stats

import "math"

// TrendDirection classifies the net movement of a forecast trajectory.
type TrendDirection string

const (
	TrendStable     TrendDirection = "stable"
	TrendDecreasing TrendDirection = "decreasing"
	TrendIncreasing TrendDirection = "increasing"
)

// StableThresholdKg is the net change below which a trajectory counts as stable.
const StableThresholdKg = 0.5

// ClassifyTrend compares the last and first predicted values. The same rule
// applies to every forecast tier.
func ClassifyTrend(predicted []float64) (TrendDirection, float64) {
	if len(predicted) == 0 {
		return TrendStable, 0
	}
	magnitude := predicted[len(predicted)-1] - predicted[0]
	switch {
	case math.Abs(magnitude) < StableThresholdKg:
		return TrendStable, magnitude
	case magnitude < 0:
		return TrendDecreasing, magnitude
	default:
		return TrendIncreasing, magnitude
	}
}
