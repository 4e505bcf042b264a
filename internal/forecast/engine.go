package forecast

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/banshee-data/calorie.report/internal/monitoring"
	"github.com/banshee-data/calorie.report/internal/stats"
)

// Tier identifies one forecasting model.
type Tier int

const (
	TierSimpleTrend Tier = iota
	TierLinearRegression
	TierExponentialSmoothing
	TierARIMA
)

// Minimum history lengths for each tier.
const (
	MinPointsARIMA       = 30
	MinPointsExponential = 14
	MinPointsLinear      = 7
	MinPoints            = 2
)

// String returns the model name reported in Result.ModelUsed.
func (t Tier) String() string {
	switch t {
	case TierARIMA:
		return "ARIMA(1,1,1)"
	case TierExponentialSmoothing:
		return "ExponentialSmoothing"
	case TierLinearRegression:
		return "LinearRegression"
	case TierSimpleTrend:
		return "SimpleTrend"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// SelectTier returns the preferred tier for a history of n points.
func SelectTier(n int) Tier {
	switch {
	case n >= MinPointsARIMA:
		return TierARIMA
	case n >= MinPointsExponential:
		return TierExponentialSmoothing
	case n >= MinPointsLinear:
		return TierLinearRegression
	default:
		return TierSimpleTrend
	}
}

// Result is one forecast. All slices have length DaysAhead.
type Result struct {
	Dates           []time.Time
	PredictedWeight []float64
	LowerBound      []float64
	UpperBound      []float64
	ModelUsed       string
	ConfidenceLevel float64
	TrendDirection  stats.TrendDirection
	TrendMagnitude  float64
	DataPointsUsed  int
}

// series is a validated history handed to every tier.
type series struct {
	days    []float64 // elapsed days since the first observation
	weights []float64
}

// tierFit is a successful fit: predictions and bounds for each horizon day.
type tierFit struct {
	predicted []float64
	lower     []float64
	upper     []float64
}

type fitFunc func(s series, horizon int, level float64) (*tierFit, error)

// Engine produces weight forecasts. The zero value is ready to use and
// an Engine is safe for concurrent use.
type Engine struct {
	// fitters overrides the per-tier fit functions; nil uses the defaults.
	fitters map[Tier]fitFunc
	// slots caps concurrent fits started by ForecastContext, including fits
	// whose caller has given up. nil means no cap.
	slots chan struct{}
}

// NewEngine returns a forecast engine that runs at most GOMAXPROCS
// ForecastContext fits at once.
func NewEngine() *Engine {
	return NewEngineWithLimit(runtime.GOMAXPROCS(0))
}

// NewEngineWithLimit returns a forecast engine that runs at most n
// ForecastContext fits at once. n < 1 disables the cap.
func NewEngineWithLimit(n int) *Engine {
	if n < 1 {
		return &Engine{}
	}
	return &Engine{slots: make(chan struct{}, n)}
}

func (e *Engine) fitter(t Tier) fitFunc {
	if f, ok := e.fitters[t]; ok {
		return f
	}
	switch t {
	case TierARIMA:
		return fitARIMA
	case TierExponentialSmoothing:
		return fitHolt
	case TierLinearRegression:
		return fitLinear
	default:
		return fitSimpleTrend
	}
}

// Forecast projects weights daysAhead days past the last date. dates must be
// strictly ascending and aligned with weights.
func (e *Engine) Forecast(dates []time.Time, weights []float64, daysAhead int, level float64) (*Result, error) {
	s, err := validate(dates, weights, daysAhead, level)
	if err != nil {
		return nil, err
	}

	fit, tier := e.run(s, daysAhead, level)

	last := dates[len(dates)-1]
	out := make([]time.Time, daysAhead)
	for i := range out {
		out[i] = last.AddDate(0, 0, i+1)
	}

	direction, magnitude := stats.ClassifyTrend(fit.predicted)
	return &Result{
		Dates:           out,
		PredictedWeight: fit.predicted,
		LowerBound:      fit.lower,
		UpperBound:      fit.upper,
		ModelUsed:       tier.String(),
		ConfidenceLevel: level,
		TrendDirection:  direction,
		TrendMagnitude:  magnitude,
		DataPointsUsed:  len(weights),
	}, nil
}

// ForecastContext runs Forecast on its own goroutine and gives up with
// ctx.Err() if ctx ends first, either while waiting for a free fit slot or
// while fitting. An abandoned fit runs to completion in the background and
// keeps its slot until then.
func (e *Engine) ForecastContext(ctx context.Context, dates []time.Time, weights []float64, daysAhead int, level float64) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.slots != nil {
		select {
		case e.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	type outcome struct {
		res *Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		if e.slots != nil {
			defer func() { <-e.slots }()
		}
		res, err := e.Forecast(dates, weights, daysAhead, level)
		ch <- outcome{res, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-ch:
		return o.res, o.err
	}
}

// run walks the tier chain from the tier chosen by n down to SimpleTrend and
// returns the first fit that succeeds.
func (e *Engine) run(s series, horizon int, level float64) (*tierFit, Tier) {
	for t := SelectTier(len(s.weights)); t > TierSimpleTrend; t-- {
		fit, err := e.fitter(t)(s, horizon, level)
		if err == nil {
			if err = fit.check(horizon); err == nil {
				return fit, t
			}
		}
		l := monitoring.Logger()
		l.Debug().Err(err).Str("model", t.String()).Int("points", len(s.weights)).Msg("forecast tier failed, falling back")
	}
	return mustSimpleTrend(s, horizon, level), TierSimpleTrend
}

// check rejects fits with the wrong shape, non-finite values or inverted bounds.
func (f *tierFit) check(horizon int) error {
	if len(f.predicted) != horizon || len(f.lower) != horizon || len(f.upper) != horizon {
		return fmt.Errorf("fit produced %d/%d/%d values, want %d", len(f.predicted), len(f.lower), len(f.upper), horizon)
	}
	for i := range f.predicted {
		p, lo, hi := f.predicted[i], f.lower[i], f.upper[i]
		if !finite(p) || !finite(lo) || !finite(hi) {
			return fmt.Errorf("non-finite forecast at day %d", i)
		}
		if lo > p || p > hi {
			return fmt.Errorf("bounds [%v, %v] exclude prediction %v at day %d", lo, hi, p, i)
		}
	}
	return nil
}

func validate(dates []time.Time, weights []float64, daysAhead int, level float64) (series, error) {
	if len(dates) != len(weights) {
		return series{}, stats.Invalidf("dates", "have %d dates but %d weights", len(dates), len(weights))
	}
	if len(weights) < MinPoints {
		return series{}, stats.Invalidf("weights", "need at least %d points, got %d", MinPoints, len(weights))
	}
	if daysAhead < 1 {
		return series{}, stats.Invalidf("days_ahead", "must be at least 1, got %d", daysAhead)
	}
	if err := stats.ValidateConfidenceLevel(level); err != nil {
		return series{}, err
	}

	s := series{
		days:    make([]float64, len(dates)),
		weights: make([]float64, len(weights)),
	}
	for i, w := range weights {
		if !(w > 0) || math.IsInf(w, 0) {
			return series{}, stats.Invalidf("weights", "weight at index %d must be positive, got %v", i, w)
		}
		if i > 0 && !dates[i].After(dates[i-1]) {
			return series{}, stats.Invalidf("dates", "must be strictly ascending at index %d", i)
		}
		s.weights[i] = w
		s.days[i] = dates[i].Sub(dates[0]).Hours() / 24
	}
	return s, nil
}

// symmetricBounds builds pred ± halfWidth.
func symmetricBounds(predicted, halfWidth []float64) *tierFit {
	lower := make([]float64, len(predicted))
	upper := make([]float64, len(predicted))
	for i, p := range predicted {
		lower[i] = p - halfWidth[i]
		upper[i] = p + halfWidth[i]
	}
	return &tierFit{predicted: predicted, lower: lower, upper: upper}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
