package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

// arma11 is an ARMA(1,1) model without constant on the first differences of
// the series, i.e. ARIMA(1,1,1).
//
//	d[t] = phi·d[t-1] + e[t] + theta·e[t-1]
type arma11 struct {
	phi, theta float64
}

// css returns the conditional sum of squares and the final innovation,
// taking e[0] = 0.
func (m arma11) css(d []float64) (sse, lastResid float64) {
	prev := 0.0
	for t := 1; t < len(d); t++ {
		e := d[t] - m.phi*d[t-1] - m.theta*prev
		sse += e * e
		prev = e
	}
	return sse, prev
}

// psi returns the first h MA(∞) weights of the integrated process: the
// running sums of the ARMA psi-weights 1, phi+theta, phi·(phi+theta), ...
func (m arma11) psi(h int) []float64 {
	out := make([]float64, h)
	w, cum := 1.0, 0.0
	for j := 0; j < h; j++ {
		if j == 1 {
			w = m.phi + m.theta
		} else if j > 1 {
			w *= m.phi
		}
		cum += w
		out[j] = cum
	}
	return out
}

// fitARIMA fits ARIMA(1,1,1) by conditional sum of squares and builds
// normal prediction intervals from the psi-weight forecast variance.
func fitARIMA(s series, horizon int, level float64) (*tierFit, error) {
	ys := s.weights
	d := make([]float64, len(ys)-1)
	for i := range d {
		d[i] = ys[i+1] - ys[i]
	}
	if len(d) < 4 {
		return nil, errors.New("arima needs at least 5 points")
	}

	// tanh keeps |phi| < 1 and |theta| < 1 (stationary, invertible).
	params := func(x []float64) arma11 {
		return arma11{phi: math.Tanh(x[0]), theta: math.Tanh(x[1])}
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sse, _ := params(x).css(d)
			return sse
		},
	}
	settings := &optimize.Settings{
		MajorIterations: 500,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-12, Iterations: 100},
	}
	res, err := optimize.Minimize(problem, []float64{0.1, 0.1}, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("arima fit: %w", err)
	}
	if res.Status != optimize.FunctionConvergence {
		return nil, fmt.Errorf("arima fit did not converge: %v", res.Status)
	}

	m := params(res.X)
	sse, lastResid := m.css(d)
	sigma2 := sse / float64(len(d)-1)
	if !finite(sigma2) || !finite(m.phi) || !finite(m.theta) {
		return nil, errors.New("arima fit: non-finite parameters")
	}

	lo, hi := (1-level)/2, (1+level)/2
	psi := m.psi(horizon)

	predicted := make([]float64, horizon)
	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	y := ys[len(ys)-1]
	step := m.phi*d[len(d)-1] + m.theta*lastResid
	variance := 0.0
	for i := range predicted {
		if i > 0 {
			step *= m.phi
		}
		y += step
		variance += sigma2 * psi[i] * psi[i]

		dist := distuv.Normal{Mu: y, Sigma: math.Sqrt(variance)}
		predicted[i] = y
		lower[i] = dist.Quantile(lo)
		upper[i] = dist.Quantile(hi)
	}
	return &tierFit{predicted: predicted, lower: lower, upper: upper}, nil
}
