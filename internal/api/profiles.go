package api

import (
	"net/http"
	"time"

	"github.com/banshee-data/calorie.report/internal/db"
	"github.com/banshee-data/calorie.report/internal/httputil"
	"github.com/banshee-data/calorie.report/internal/stats"
	"github.com/banshee-data/calorie.report/internal/tdee"
	"github.com/banshee-data/calorie.report/internal/timeutil"
	"github.com/banshee-data/calorie.report/internal/units"
)

type profileResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	TDEE           float64    `json:"tdee"`
	TDEEVariance   float64    `json:"tdeeVariance"`
	TDEEUpdatedAt  *time.Time `json:"tdeeUpdatedAt"`
	LastProgressOn *string    `json:"lastProgressOn"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func toProfileResponse(p *db.Profile) profileResponse {
	out := profileResponse{
		ID:            p.ID,
		Name:          p.Name,
		TDEE:          p.TDEEEstimate,
		TDEEVariance:  p.TDEEVariance,
		TDEEUpdatedAt: p.TDEEUpdatedAt,
		CreatedAt:     p.CreatedAt,
	}
	if p.LastProgressOn != nil {
		d := timeutil.FormatDate(*p.LastProgressOn)
		out.LastProgressOn = &d
	}
	return out
}

type createProfileRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	InitialTDEE *float64 `json:"initialTdee" validate:"omitempty,gte=500,lte=10000"`
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.check(&req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p := &db.Profile{
		Name:         req.Name,
		TDEEEstimate: s.cfg.GetInitialTDEE(),
		TDEEVariance: s.cfg.GetInitialVariance(),
	}
	if req.InitialTDEE != nil {
		p.TDEEEstimate = *req.InitialTDEE
	}
	if err := s.store.CreateProfile(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toProfileResponse(p))
}

func (s *Server) showProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSONOK(w, toProfileResponse(p))
}

type progressRequest struct {
	Date             string   `json:"date" validate:"required,datetime=2006-01-02"`
	WeightKg         float64  `json:"weightKg" validate:"gt=0,lt=1000"`
	ConsumedCalories *float64 `json:"consumedCalories" validate:"omitempty,gte=0,lte=50000"`
}

type progressEntry struct {
	Date             string   `json:"date"`
	Weight           float64  `json:"weight"`
	ConsumedCalories *float64 `json:"consumedCalories"`
}

// recordProgress upserts one day's weight (kg) and optional intake.
func (s *Server) recordProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.check(&req); err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := timeutil.ParseDate(req.Date)
	if err != nil {
		s.writeError(w, r, stats.Invalidf("date", "%v", err))
		return
	}

	rec := &db.ProgressRecord{
		ProfileID:        r.PathValue("id"),
		Date:             date,
		WeightKg:         req.WeightKg,
		ConsumedCalories: req.ConsumedCalories,
	}
	if err := s.store.RecordProgress(r.Context(), rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"id":               rec.ID,
		"profileId":        rec.ProfileID,
		"date":             timeutil.FormatDate(rec.Date),
		"weightKg":         rec.WeightKg,
		"consumedCalories": rec.ConsumedCalories,
	})
}

type unitsQuery struct {
	Units string `query:"units" validate:"oneof=kg lb"`
}

// listProgress returns the profile's full weight history, oldest first.
func (s *Server) listProgress(w http.ResponseWriter, r *http.Request) {
	q := unitsQuery{Units: queryString(r.URL.Query(), "units", units.KG)}
	if err := s.check(&q); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	history, err := s.history(r, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entries := make([]progressEntry, len(history))
	for i, rec := range history {
		entries[i] = progressEntry{
			Date:             timeutil.FormatDate(rec.Date),
			Weight:           units.ConvertWeight(rec.WeightKg, q.Units),
			ConsumedCalories: rec.ConsumedCalories,
		}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"profileId": id,
		"units":     q.Units,
		"records":   entries,
	})
}

// history loads a profile's records, reporting ErrNotFound for an unknown
// profile rather than an empty list.
func (s *Server) history(r *http.Request, id string) ([]db.ProgressRecord, error) {
	if _, err := s.store.GetProfile(r.Context(), id); err != nil {
		return nil, err
	}
	return s.store.WeightHistory(r.Context(), id)
}

type tdeeQuery struct {
	ConfidenceLevel float64 `query:"confidence_level" validate:"gt=0,lt=1"`
}

type tdeeResponse struct {
	ProfileID       string     `json:"profileId"`
	TDEE            float64    `json:"tdee"`
	StdDev          float64    `json:"stdDev"`
	LowerBound      float64    `json:"lowerBound"`
	UpperBound      float64    `json:"upperBound"`
	ConfidenceLevel float64    `json:"confidenceLevel"`
	UpdatedAt       *time.Time `json:"updatedAt"`
}

// showTDEE reports the profile's persisted estimate with a confidence
// interval.
func (s *Server) showTDEE(w http.ResponseWriter, r *http.Request) {
	level, err := queryFloat(r.URL.Query(), "confidence_level", s.cfg.GetConfidenceLevel())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := tdeeQuery{ConfidenceLevel: level}
	if err := s.check(&q); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.store.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	est, err := tdee.RestoreEstimator(tdee.ConfigFromTuning(s.cfg), tdee.KalmanState{
		TDEEEstimate:     p.TDEEEstimate,
		Variance:         p.TDEEVariance,
		PreviousWeightKg: p.PreviousWeightKg,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lower, upper, err := est.ConfidenceInterval(q.ConfidenceLevel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, sd := est.Estimate()
	httputil.WriteJSONOK(w, tdeeResponse{
		ProfileID:       p.ID,
		TDEE:            value,
		StdDev:          sd,
		LowerBound:      lower,
		UpperBound:      upper,
		ConfidenceLevel: q.ConfidenceLevel,
		UpdatedAt:       p.TDEEUpdatedAt,
	})
}
