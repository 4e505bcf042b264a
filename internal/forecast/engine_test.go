package forecast

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calorie.report/internal/stats"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func dailyDates(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = day0.AddDate(0, 0, i)
	}
	return out
}

// noisyLoss is a slow linear loss with small deterministic noise.
func noisyLoss(n int, seed uint64) []float64 {
	r := rand.New(rand.NewPCG(seed, 99))
	out := make([]float64, n)
	for i := range out {
		out[i] = 90 - 0.08*float64(i) + r.NormFloat64()*0.3
	}
	return out
}

func assertBounds(t *testing.T, res *Result) {
	t.Helper()
	for i := range res.PredictedWeight {
		assert.LessOrEqual(t, res.LowerBound[i], res.PredictedWeight[i], "day %d", i)
		assert.LessOrEqual(t, res.PredictedWeight[i], res.UpperBound[i], "day %d", i)
	}
}

func TestSelectTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want Tier
	}{
		{2, TierSimpleTrend},
		{6, TierSimpleTrend},
		{7, TierLinearRegression},
		{13, TierLinearRegression},
		{14, TierExponentialSmoothing},
		{29, TierExponentialSmoothing},
		{30, TierARIMA},
		{365, TierARIMA},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectTier(tt.n), "n=%d", tt.n)
	}
}

func TestTierString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ARIMA(1,1,1)", TierARIMA.String())
	assert.Equal(t, "ExponentialSmoothing", TierExponentialSmoothing.String())
	assert.Equal(t, "LinearRegression", TierLinearRegression.String())
	assert.Equal(t, "SimpleTrend", TierSimpleTrend.String())
	assert.Equal(t, "Tier(9)", Tier(9).String())
}

func TestForecast_ModelByHistoryLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n       int
		allowed []string
	}{
		{5, []string{"SimpleTrend"}},
		{10, []string{"LinearRegression"}},
		{20, []string{"ExponentialSmoothing"}},
		{40, []string{"ARIMA(1,1,1)"}},
	}
	e := NewEngine()
	for _, tt := range tests {
		res, err := e.Forecast(dailyDates(tt.n), noisyLoss(tt.n, uint64(tt.n)), 14, 0.95)
		require.NoError(t, err, "n=%d", tt.n)
		assert.Contains(t, tt.allowed, res.ModelUsed, "n=%d", tt.n)
		assert.Equal(t, tt.n, res.DataPointsUsed)
		assert.Len(t, res.PredictedWeight, 14)
		assert.Len(t, res.LowerBound, 14)
		assert.Len(t, res.UpperBound, 14)
		assert.Len(t, res.Dates, 14)
		assertBounds(t, res)
	}
}

func TestForecast_WorkedExample(t *testing.T) {
	t.Parallel()

	dates := dailyDates(5)
	weights := []float64{80.0, 79.5, 79.0, 78.7, 78.5}

	res, err := NewEngine().Forecast(dates, weights, 7, 0.95)
	require.NoError(t, err)

	assert.Equal(t, "SimpleTrend", res.ModelUsed)
	assert.Equal(t, 0.95, res.ConfidenceLevel)
	require.Len(t, res.PredictedWeight, 7)
	assert.InDelta(t, 78.125, res.PredictedWeight[0], 1e-12)

	for i := 1; i < 7; i++ {
		assert.Less(t, res.PredictedWeight[i], res.PredictedWeight[i-1])
		prevWidth := res.UpperBound[i-1] - res.LowerBound[i-1]
		width := res.UpperBound[i] - res.LowerBound[i]
		assert.Greater(t, width, prevWidth)
	}

	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), res.Dates[0])
	assert.Equal(t, time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC), res.Dates[6])

	// 6 days at -0.375 kg/day
	assert.Equal(t, stats.TrendDecreasing, res.TrendDirection)
	assert.InDelta(t, -2.25, res.TrendMagnitude, 1e-9)
}

func TestForecast_BoundsHoldAcrossTiers(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	for _, n := range []int{2, 3, 6, 7, 12, 14, 25, 30, 45, 90} {
		for _, level := range []float64{0.5, 0.8, 0.95, 0.99} {
			res, err := e.Forecast(dailyDates(n), noisyLoss(n, uint64(n)+7), 30, level)
			require.NoError(t, err)
			assertBounds(t, res)
		}
	}
}

func TestForecast_WiderAtHigherConfidence(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	for _, n := range []int{5, 10, 20, 40} {
		dates, weights := dailyDates(n), noisyLoss(n, 3)
		hi, err := e.Forecast(dates, weights, 7, 0.95)
		require.NoError(t, err)
		lo, err := e.Forecast(dates, weights, 7, 0.68)
		require.NoError(t, err)
		require.Equal(t, hi.ModelUsed, lo.ModelUsed)

		wideHi := hi.UpperBound[0] - hi.LowerBound[0]
		wideLo := lo.UpperBound[0] - lo.LowerBound[0]
		assert.Greater(t, wideHi, wideLo, "n=%d model=%s", n, hi.ModelUsed)
	}
}

func TestForecast_Deterministic(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	for _, n := range []int{5, 10} {
		dates, weights := dailyDates(n), noisyLoss(n, 11)
		a, err := e.Forecast(dates, weights, 10, 0.9)
		require.NoError(t, err)
		b, err := e.Forecast(dates, weights, 10, 0.9)
		require.NoError(t, err)
		assert.Equal(t, a.PredictedWeight, b.PredictedWeight)
	}
	for _, n := range []int{20, 40} {
		dates, weights := dailyDates(n), noisyLoss(n, 11)
		a, err := e.Forecast(dates, weights, 10, 0.9)
		require.NoError(t, err)
		b, err := e.Forecast(dates, weights, 10, 0.9)
		require.NoError(t, err)
		require.Equal(t, a.ModelUsed, b.ModelUsed)
		assert.InDeltaSlice(t, a.PredictedWeight, b.PredictedWeight, 1e-6)
	}
}

func TestForecast_Validation(t *testing.T) {
	t.Parallel()

	dates := dailyDates(5)
	weights := []float64{80, 79.5, 79, 78.7, 78.5}
	unordered := append([]time.Time(nil), dates...)
	unordered[2], unordered[3] = unordered[3], unordered[2]
	repeated := append([]time.Time(nil), dates...)
	repeated[3] = repeated[2]

	tests := []struct {
		name    string
		dates   []time.Time
		weights []float64
		days    int
		level   float64
		field   string
	}{
		{"length mismatch", dates[:4], weights, 7, 0.95, "dates"},
		{"single point", dates[:1], weights[:1], 7, 0.95, "weights"},
		{"empty", nil, nil, 7, 0.95, "weights"},
		{"zero weight", dates, []float64{80, 0, 79, 78, 77}, 7, 0.95, "weights"},
		{"negative weight", dates, []float64{80, 79, -1, 78, 77}, 7, 0.95, "weights"},
		{"nan weight", dates, []float64{80, 79, math.NaN(), 78, 77}, 7, 0.95, "weights"},
		{"unordered dates", unordered, weights, 7, 0.95, "dates"},
		{"repeated date", repeated, weights, 7, 0.95, "dates"},
		{"zero days ahead", dates, weights, 0, 0.95, "days_ahead"},
		{"level zero", dates, weights, 7, 0, "confidence_level"},
		{"level one", dates, weights, 7, 1, "confidence_level"},
		{"level nan", dates, weights, 7, math.NaN(), "confidence_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewEngine().Forecast(tt.dates, tt.weights, tt.days, tt.level)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, stats.ErrValidation)
			var ve *stats.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestForecast_FallsBackOnFitFailure(t *testing.T) {
	t.Parallel()

	failing := func(series, int, float64) (*tierFit, error) {
		return nil, errors.New("did not converge")
	}
	e := &Engine{fitters: map[Tier]fitFunc{TierARIMA: failing}}
	res, err := e.Forecast(dailyDates(40), noisyLoss(40, 1), 7, 0.95)
	require.NoError(t, err)
	assert.Equal(t, "ExponentialSmoothing", res.ModelUsed)

	e = &Engine{fitters: map[Tier]fitFunc{
		TierARIMA:                failing,
		TierExponentialSmoothing: failing,
		TierLinearRegression:     failing,
	}}
	res, err = e.Forecast(dailyDates(40), noisyLoss(40, 1), 7, 0.95)
	require.NoError(t, err)
	assert.Equal(t, "SimpleTrend", res.ModelUsed)
	assertBounds(t, res)
}

func TestForecast_LongHistoryUsesARIMA(t *testing.T) {
	t.Parallel()

	for _, n := range []int{30, 60, 90} {
		res, err := NewEngine().Forecast(dailyDates(n), noisyLoss(n, 21), 14, 0.95)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, "ARIMA(1,1,1)", res.ModelUsed, "n=%d", n)
		assertBounds(t, res)
	}
}

func TestForecast_UnconvergedSmoothingFallsBack(t *testing.T) {
	t.Parallel()

	starved := func(s series, horizon int, level float64) (*tierFit, error) {
		return fitHoltIter(s, horizon, level, 1)
	}
	e := &Engine{fitters: map[Tier]fitFunc{TierExponentialSmoothing: starved}}
	res, err := e.Forecast(dailyDates(20), noisyLoss(20, 4), 7, 0.95)
	require.NoError(t, err)
	assert.Equal(t, "LinearRegression", res.ModelUsed)
	assertBounds(t, res)
}

func TestForecast_RejectsMalformedFit(t *testing.T) {
	t.Parallel()

	inverted := func(_ series, horizon int, _ float64) (*tierFit, error) {
		f := &tierFit{
			predicted: make([]float64, horizon),
			lower:     make([]float64, horizon),
			upper:     make([]float64, horizon),
		}
		for i := range f.predicted {
			f.predicted[i], f.lower[i], f.upper[i] = 80, 81, 79
		}
		return f, nil
	}
	short := func(series, int, float64) (*tierFit, error) {
		return &tierFit{predicted: []float64{1}, lower: []float64{0}, upper: []float64{2}}, nil
	}

	e := &Engine{fitters: map[Tier]fitFunc{TierLinearRegression: inverted}}
	res, err := e.Forecast(dailyDates(10), noisyLoss(10, 2), 7, 0.95)
	require.NoError(t, err)
	assert.Equal(t, "SimpleTrend", res.ModelUsed)

	e = &Engine{fitters: map[Tier]fitFunc{TierLinearRegression: short}}
	res, err = e.Forecast(dailyDates(10), noisyLoss(10, 2), 7, 0.95)
	require.NoError(t, err)
	assert.Equal(t, "SimpleTrend", res.ModelUsed)
}

func TestForecast_FlatHistoryIsStable(t *testing.T) {
	t.Parallel()

	weights := []float64{75, 75, 75, 75}
	res, err := NewEngine().Forecast(dailyDates(4), weights, 30, 0.95)
	require.NoError(t, err)
	assert.Equal(t, stats.TrendStable, res.TrendDirection)
	assert.Equal(t, 0.0, res.TrendMagnitude)
	assertBounds(t, res)
}

func TestForecastContext(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	res, err := e.ForecastContext(context.Background(), dailyDates(10), noisyLoss(10, 5), 7, 0.95)
	require.NoError(t, err)
	assert.Equal(t, "LinearRegression", res.ModelUsed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ForecastContext(ctx, dailyDates(10), noisyLoss(10, 5), 7, 0.95)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = e.ForecastContext(context.Background(), dailyDates(1), []float64{80}, 7, 0.95)
	assert.ErrorIs(t, err, stats.ErrValidation)
}

func TestForecastContext_LimitsConcurrentFits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, runtime.GOMAXPROCS(0), cap(NewEngine().slots))
	assert.Nil(t, NewEngineWithLimit(0).slots)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	blocking := func(s series, horizon int, level float64) (*tierFit, error) {
		entered <- struct{}{}
		<-release
		return fitLinear(s, horizon, level)
	}
	e := NewEngineWithLimit(1)
	e.fitters = map[Tier]fitFunc{TierLinearRegression: blocking}
	dates, weights := dailyDates(10), noisyLoss(10, 5)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := e.ForecastContext(ctx, dates, weights, 7, 0.95)
		errc <- err
	}()
	<-entered
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	// the abandoned fit still holds the only slot
	tctx, tcancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer tcancel()
	_, err := e.ForecastContext(tctx, dates, weights, 7, 0.95)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	res, err := e.ForecastContext(context.Background(), dates, weights, 7, 0.95)
	require.NoError(t, err)
	assert.Equal(t, "LinearRegression", res.ModelUsed)
}
