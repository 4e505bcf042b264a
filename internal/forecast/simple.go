package forecast

import "github.com/banshee-data/calorie.report/internal/stats"

// fitSimpleTrend extends the line through the first and last observations.
// The band grows 20% of the historical spread per day.
func fitSimpleTrend(s series, horizon int, level float64) (*tierFit, error) {
	z, err := stats.ZScore(level)
	if err != nil {
		return nil, err
	}
	return simpleTrend(s, horizon, z), nil
}

// mustSimpleTrend is the end of the fallback chain. level has already been
// validated.
func mustSimpleTrend(s series, horizon int, level float64) *tierFit {
	z, _ := stats.ZScore(level)
	return simpleTrend(s, horizon, z)
}

func simpleTrend(s series, horizon int, z float64) *tierFit {
	n := len(s.weights)
	first, last := s.weights[0], s.weights[n-1]
	perDay := (last - first) / float64(n-1)
	spread := stats.StdDev(s.weights)

	predicted := make([]float64, horizon)
	half := make([]float64, horizon)
	for i := range predicted {
		predicted[i] = last + perDay*float64(i+1)
		half[i] = z * spread * (1 + 0.2*float64(i))
	}
	return symmetricBounds(predicted, half)
}
