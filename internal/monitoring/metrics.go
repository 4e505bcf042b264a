package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. Build one per process
// with NewMetrics and pass it to the components that record into it.
type Metrics struct {
	// JobRunsTotal counts weekly TDEE job runs by result (ok, error).
	JobRunsTotal *prometheus.CounterVec
	// JobProfilesTotal counts profiles handled by the job by outcome
	// (updated, skipped, failed).
	JobProfilesTotal *prometheus.CounterVec
	// JobRunDuration tracks wall time of a job run.
	JobRunDuration prometheus.Histogram

	// ForecastsTotal counts served forecasts by the model actually used.
	ForecastsTotal *prometheus.CounterVec
	// ForecastDuration tracks the fit time of a forecast.
	ForecastDuration prometheus.Histogram
}

// NewMetrics registers the collectors with reg. Pass
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "calorie_tdee_job_runs_total",
			Help: "Total number of weekly TDEE job runs",
		}, []string{"result"}),
		JobProfilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "calorie_tdee_job_profiles_total",
			Help: "Profiles handled by the weekly TDEE job",
		}, []string{"outcome"}),
		JobRunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "calorie_tdee_job_run_duration_seconds",
			Help:    "Duration of weekly TDEE job runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		ForecastsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "calorie_forecasts_total",
			Help: "Weight forecasts served, by model used",
		}, []string{"model"}),
		ForecastDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "calorie_forecast_duration_seconds",
			Help:    "Time spent fitting a weight forecast in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// ObserveForecast records one served forecast.
func (m *Metrics) ObserveForecast(model string, took time.Duration) {
	m.ForecastsTotal.WithLabelValues(model).Inc()
	m.ForecastDuration.Observe(took.Seconds())
}
