package forecast

import (
	"errors"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/calorie.report/internal/stats"
)

// fitLinear regresses weight on elapsed days and extrapolates the line.
// The band grows 10% of the residual spread per day.
func fitLinear(s series, horizon int, level float64) (*tierFit, error) {
	z, err := stats.ZScore(level)
	if err != nil {
		return nil, err
	}

	alpha, beta := stat.LinearRegression(s.days, s.weights, nil, false)
	if !finite(alpha) || !finite(beta) {
		return nil, errors.New("degenerate regression")
	}

	resid := make([]float64, len(s.weights))
	for i, x := range s.days {
		resid[i] = s.weights[i] - (alpha + beta*x)
	}
	spread := stats.StdDev(resid)

	lastDay := s.days[len(s.days)-1]
	predicted := make([]float64, horizon)
	half := make([]float64, horizon)
	for i := range predicted {
		predicted[i] = alpha + beta*(lastDay+float64(i+1))
		half[i] = z * spread * (1 + 0.1*float64(i))
	}
	return symmetricBounds(predicted, half), nil
}
