package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/calorie.report/internal/stats"
)

// holt is Holt's linear exponential smoothing with additive trend and no
// seasonal component.
type holt struct {
	alpha, beta  float64
	level, trend float64
	resid        []float64 // one-step-ahead errors
}

// run smooths ys from level ys[0] and trend ys[1]-ys[0].
func (h *holt) run(ys []float64) float64 {
	h.level = ys[0]
	h.trend = ys[1] - ys[0]
	h.resid = h.resid[:0]
	sse := 0.0
	for _, y := range ys[1:] {
		e := y - (h.level + h.trend)
		h.resid = append(h.resid, e)
		sse += e * e

		prev := h.level
		h.level = h.alpha*y + (1-h.alpha)*(h.level+h.trend)
		h.trend = h.beta*(h.level-prev) + (1-h.beta)*h.trend
	}
	return sse
}

// fitHolt picks alpha and beta in (0, 1) minimising the one-step squared
// error, then projects level + trend·(i+1). The band grows with sqrt(i+1).
func fitHolt(s series, horizon int, level float64) (*tierFit, error) {
	return fitHoltIter(s, horizon, level, holtMaxIterations)
}

// holtMaxIterations bounds the Nelder–Mead search over (alpha, beta).
const holtMaxIterations = 1000

// fitHoltIter is fitHolt with an explicit iteration budget. A search that
// runs out of iterations is rejected.
func fitHoltIter(s series, horizon int, level float64, maxIter int) (*tierFit, error) {
	z, err := stats.ZScore(level)
	if err != nil {
		return nil, err
	}
	ys := s.weights
	if len(ys) < 3 {
		return nil, errors.New("exponential smoothing needs at least 3 points")
	}

	h := &holt{resid: make([]float64, 0, len(ys))}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			h.alpha, h.beta = logistic(x[0]), logistic(x[1])
			return h.run(ys)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 100},
	}
	res, err := optimize.Minimize(problem, []float64{logit(0.5), logit(0.1)}, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("smoothing fit: %w", err)
	}
	if res.Status != optimize.FunctionConvergence {
		return nil, fmt.Errorf("smoothing fit did not converge: %v", res.Status)
	}
	if !finite(res.F) {
		return nil, errors.New("smoothing fit: non-finite error")
	}

	h.alpha, h.beta = logistic(res.X[0]), logistic(res.X[1])
	h.run(ys)
	spread := stats.StdDev(h.resid)

	predicted := make([]float64, horizon)
	half := make([]float64, horizon)
	for i := range predicted {
		predicted[i] = h.level + h.trend*float64(i+1)
		half[i] = z * spread * math.Sqrt(float64(i+1))
	}
	return symmetricBounds(predicted, half), nil
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }
