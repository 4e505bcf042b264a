// Package api serves the calorie.report HTTP surface: profiles, progress
// logging, TDEE estimates and weight forecasts.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/calorie.report/internal/config"
	"github.com/banshee-data/calorie.report/internal/db"
	"github.com/banshee-data/calorie.report/internal/forecast"
	"github.com/banshee-data/calorie.report/internal/httputil"
	"github.com/banshee-data/calorie.report/internal/monitoring"
	"github.com/banshee-data/calorie.report/internal/stats"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Store is the persistence the handlers need. *db.DB satisfies it.
type Store interface {
	CreateProfile(ctx context.Context, p *db.Profile) error
	GetProfile(ctx context.Context, id string) (*db.Profile, error)
	RecordProgress(ctx context.Context, r *db.ProgressRecord) error
	WeightHistory(ctx context.Context, profileID string) ([]db.ProgressRecord, error)
}

type Server struct {
	store    Store
	engine   *forecast.Engine
	cfg      *config.Config
	metrics  *monitoring.Metrics
	gatherer prometheus.Gatherer
	validate *validator.Validate
}

// NewServer wires the handlers. metrics and gatherer are usually backed by
// the same registry; a nil gatherer leaves /metrics unmounted.
func NewServer(store Store, cfg *config.Config, metrics *monitoring.Metrics, gatherer prometheus.Gatherer) *Server {
	if metrics == nil {
		metrics = monitoring.NewMetrics(prometheus.NewRegistry())
	}
	return &Server{
		store:    store,
		engine:   forecast.NewEngine(),
		cfg:      cfg,
		metrics:  metrics,
		gatherer: gatherer,
		validate: newValidator(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware tags each request with an id (reusing X-Request-ID when
// the client sent one) and logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = monitoring.NewRunID()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(monitoring.ContextWithRequestID(r.Context(), id))

		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Ctx(r.Context()).Info().
			Int("status", lrw.statusCode).
			Float64("ms", float64(time.Since(start).Nanoseconds())/1e6).
			Msgf("[%s] %s %s%s%s", statusCodeColor(lrw.statusCode), r.Method, colorCyan, r.RequestURI, colorReset)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/profiles", s.createProfile)
	mux.HandleFunc("GET /api/profiles/{id}", s.showProfile)
	mux.HandleFunc("GET /api/profiles/{id}/progress", s.listProgress)
	mux.HandleFunc("POST /api/profiles/{id}/progress", s.recordProgress)
	mux.HandleFunc("GET /api/profiles/{id}/tdee", s.showTDEE)
	mux.HandleFunc("GET /api/profiles/{id}/forecast", s.showForecast)
	mux.HandleFunc("GET /api/profiles/{id}/forecast/chart", s.showForecastChart)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// writeError maps err onto a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, stats.ErrValidation):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, db.ErrNotFound):
		httputil.NotFound(w, "profile not found")
	case errors.Is(err, context.DeadlineExceeded):
		httputil.ServiceUnavailable(w, "forecast timed out")
	default:
		monitoring.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		httputil.InternalServerError(w, "internal error")
	}
}
