package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/calorie.report/internal/db"
	"github.com/banshee-data/calorie.report/internal/forecast"
	"github.com/banshee-data/calorie.report/internal/httputil"
	"github.com/banshee-data/calorie.report/internal/monitoring"
	"github.com/banshee-data/calorie.report/internal/stats"
	"github.com/banshee-data/calorie.report/internal/timeutil"
	"github.com/banshee-data/calorie.report/internal/units"
)

type forecastQuery struct {
	DaysAhead       int     `query:"days_ahead" validate:"min=1,max=365"`
	ConfidenceLevel float64 `query:"confidence_level" validate:"gt=0,lt=1"`
	Units           string  `query:"units" validate:"oneof=kg lb"`
}

type forecastPoint struct {
	Date            string  `json:"date"`
	PredictedWeight float64 `json:"predictedWeight"`
	LowerBound      float64 `json:"lowerBound"`
	UpperBound      float64 `json:"upperBound"`
}

type forecastResponse struct {
	ProfileID       string               `json:"profileId"`
	Model           string               `json:"model"`
	Units           string               `json:"units"`
	ConfidenceLevel float64              `json:"confidenceLevel"`
	DataPointsUsed  int                  `json:"dataPointsUsed"`
	TrendDirection  stats.TrendDirection `json:"trendDirection"`
	TrendMagnitude  float64              `json:"trendMagnitude"`
	Forecast        []forecastPoint      `json:"forecast"`
}

func (s *Server) parseForecastQuery(r *http.Request) (forecastQuery, error) {
	vals := r.URL.Query()
	days, err := queryInt(vals, "days_ahead", s.cfg.GetDaysAhead())
	if err != nil {
		return forecastQuery{}, err
	}
	level, err := queryFloat(vals, "confidence_level", s.cfg.GetConfidenceLevel())
	if err != nil {
		return forecastQuery{}, err
	}
	q := forecastQuery{
		DaysAhead:       days,
		ConfidenceLevel: level,
		Units:           queryString(vals, "units", units.KG),
	}
	if err := s.check(&q); err != nil {
		return forecastQuery{}, err
	}
	return q, nil
}

// forecastFor loads the profile's history and fits a forecast in kg under
// the configured timeout.
func (s *Server) forecastFor(r *http.Request, id string, q forecastQuery) (*forecast.Result, []db.ProgressRecord, error) {
	history, err := s.history(r, id)
	if err != nil {
		return nil, nil, err
	}
	dates := make([]time.Time, len(history))
	weights := make([]float64, len(history))
	for i, rec := range history {
		dates[i] = rec.Date
		weights[i] = rec.WeightKg
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.GetForecastTimeout())
	defer cancel()
	start := time.Now()
	res, err := s.engine.ForecastContext(ctx, dates, weights, q.DaysAhead, q.ConfidenceLevel)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.ObserveForecast(res.ModelUsed, time.Since(start))
	monitoring.Ctx(r.Context()).Debug().
		Str("profile_id", id).
		Str("model", res.ModelUsed).
		Int("points", res.DataPointsUsed).
		Msg("forecast served")
	return res, history, nil
}

func (s *Server) showForecast(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseForecastQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	res, _, err := s.forecastFor(r, id, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	points := make([]forecastPoint, len(res.Dates))
	for i, d := range res.Dates {
		points[i] = forecastPoint{
			Date:            timeutil.FormatDate(d),
			PredictedWeight: units.ConvertWeight(res.PredictedWeight[i], q.Units),
			LowerBound:      units.ConvertWeight(res.LowerBound[i], q.Units),
			UpperBound:      units.ConvertWeight(res.UpperBound[i], q.Units),
		}
	}
	httputil.WriteJSONOK(w, forecastResponse{
		ProfileID:       id,
		Model:           res.ModelUsed,
		Units:           q.Units,
		ConfidenceLevel: res.ConfidenceLevel,
		DataPointsUsed:  res.DataPointsUsed,
		TrendDirection:  res.TrendDirection,
		TrendMagnitude:  units.ConvertWeight(res.TrendMagnitude, q.Units),
		Forecast:        points,
	})
}

// showForecastChart renders history and forecast as an HTML line chart.
func (s *Server) showForecastChart(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseForecastQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	res, history, err := s.forecastFor(r, id, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	n := len(history) + len(res.Dates)
	xs := make([]string, 0, n)
	observed := make([]opts.LineData, 0, n)
	predicted := make([]opts.LineData, 0, n)
	lower := make([]opts.LineData, 0, n)
	upper := make([]opts.LineData, 0, n)
	gap := opts.LineData{Value: "-"}

	for i, rec := range history {
		xs = append(xs, timeutil.FormatDate(rec.Date))
		observed = append(observed, opts.LineData{Value: units.ConvertWeight(rec.WeightKg, q.Units)})
		if i == len(history)-1 {
			// join the forecast lines to the last observation
			v := opts.LineData{Value: units.ConvertWeight(rec.WeightKg, q.Units)}
			predicted = append(predicted, v)
			lower = append(lower, v)
			upper = append(upper, v)
			continue
		}
		predicted = append(predicted, gap)
		lower = append(lower, gap)
		upper = append(upper, gap)
	}
	for i, d := range res.Dates {
		xs = append(xs, timeutil.FormatDate(d))
		observed = append(observed, gap)
		predicted = append(predicted, opts.LineData{Value: units.ConvertWeight(res.PredictedWeight[i], q.Units)})
		lower = append(lower, opts.LineData{Value: units.ConvertWeight(res.LowerBound[i], q.Units)})
		upper = append(upper, opts.LineData{Value: units.ConvertWeight(res.UpperBound[i], q.Units)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Weight Forecast", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Weight Forecast",
			Subtitle: fmt.Sprintf("model=%s points=%d confidence=%.0f%% trend=%s", res.ModelUsed, res.DataPointsUsed, res.ConfidenceLevel*100, res.TrendDirection),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("Weight (%s)", q.Units), Min: "dataMin"}),
	)
	line.SetXAxis(xs).
		AddSeries("observed", observed).
		AddSeries("forecast", predicted).
		AddSeries("lower", lower, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"})).
		AddSeries("upper", upper, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
