// Package job runs the periodic TDEE re-estimation over every profile with
// enough recent progress.
package job

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/calorie.report/internal/config"
	"github.com/banshee-data/calorie.report/internal/db"
	"github.com/banshee-data/calorie.report/internal/monitoring"
	"github.com/banshee-data/calorie.report/internal/tdee"
	"github.com/banshee-data/calorie.report/internal/timeutil"
)

// Repository is the slice of the store the worker needs.
type Repository interface {
	FindProfilesWithRecentProgress(ctx context.Context, lookbackDays, minRecords int, now time.Time) ([]db.ProfileProgress, error)
	SaveProfile(ctx context.Context, p *db.Profile) error
}

// Summary reports the outcome of one run.
type Summary struct {
	RunID     string
	Processed int // profiles returned by the repository
	Updated   int
	Skipped   int // no records newer than the last run
	Failed    int
}

// TDEEWorker periodically replays each active profile's new progress records
// through its Kalman estimator and persists the result.
type TDEEWorker struct {
	repo    Repository
	clock   timeutil.Clock
	metrics *monitoring.Metrics
	tuning  tdee.Config

	Interval     time.Duration // how often to run (e.g., 168h)
	LookbackDays int           // progress window (e.g., 14)
	MinRecords   int           // records required in the window (e.g., 3)
	Workers      int           // profiles processed concurrently

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewTDEEWorker builds a worker from cfg. A nil metrics records into a
// private registry.
func NewTDEEWorker(repo Repository, cfg *config.Config, clock timeutil.Clock, metrics *monitoring.Metrics) *TDEEWorker {
	if metrics == nil {
		metrics = monitoring.NewMetrics(prometheus.NewRegistry())
	}
	return &TDEEWorker{
		repo:         repo,
		clock:        clock,
		metrics:      metrics,
		tuning:       tdee.ConfigFromTuning(cfg),
		Interval:     cfg.GetJobInterval(),
		LookbackDays: cfg.GetLookbackDays(),
		MinRecords:   cfg.GetMinRecords(),
		Workers:      cfg.GetJobWorkers(),
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the periodic worker loop in a goroutine.
func (w *TDEEWorker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	ticker := w.clock.NewTicker(w.Interval)
	go func() {
		defer close(w.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if _, err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("tdee worker run error: %v", err)
				}
			case <-w.stopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop and waits for an in-flight run to finish.
func (w *TDEEWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.started.Load() {
		<-w.done
	}
}

// RunOnce re-estimates every profile with at least MinRecords progress
// records in the last LookbackDays. A profile that fails is logged and
// counted; it never stops the others. The returned error covers only
// loading the work list or cancellation of ctx.
func (w *TDEEWorker) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: monitoring.NewRunID()}
	ctx = monitoring.ContextWithRunID(ctx, sum.RunID)
	log := monitoring.Ctx(ctx)
	now := w.clock.Now()

	defer func() { w.metrics.JobRunDuration.Observe(time.Since(start).Seconds()) }()

	batch, err := w.repo.FindProfilesWithRecentProgress(ctx, w.LookbackDays, w.MinRecords, now)
	if err != nil {
		w.metrics.JobRunsTotal.WithLabelValues("error").Inc()
		return sum, fmt.Errorf("failed to load recent progress: %w", err)
	}
	sum.Processed = len(batch)

	var updated, skipped, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(max(w.Workers, 1))
	for _, pp := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			changed, err := w.processProfile(ctx, pp, now)
			switch {
			case err != nil:
				failed.Add(1)
				log.Error().Err(err).Str("profile_id", pp.Profile.ID).Msg("tdee update failed")
			case changed:
				updated.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	sum.Updated = int(updated.Load())
	sum.Skipped = int(skipped.Load())
	sum.Failed = int(failed.Load())
	w.metrics.JobProfilesTotal.WithLabelValues("updated").Add(float64(sum.Updated))
	w.metrics.JobProfilesTotal.WithLabelValues("skipped").Add(float64(sum.Skipped))
	w.metrics.JobProfilesTotal.WithLabelValues("failed").Add(float64(sum.Failed))

	if err != nil {
		w.metrics.JobRunsTotal.WithLabelValues("error").Inc()
		return sum, fmt.Errorf("tdee run interrupted: %w", err)
	}
	w.metrics.JobRunsTotal.WithLabelValues("ok").Inc()
	log.Info().
		Int("processed", sum.Processed).
		Int("updated", sum.Updated).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Msg("tdee run complete")
	return sum, nil
}

// processProfile folds the records newer than the profile's watermark into
// its estimate, oldest first, and saves the new state. Reports false when
// there was nothing new. Nothing is saved if any record is rejected.
func (w *TDEEWorker) processProfile(ctx context.Context, pp db.ProfileProgress, now time.Time) (bool, error) {
	p := pp.Profile
	records := newRecords(pp.Records, p.LastProgressOn)
	if len(records) == 0 {
		return false, nil
	}

	est, err := tdee.RestoreEstimator(w.tuning, tdee.KalmanState{
		TDEEEstimate:     p.TDEEEstimate,
		Variance:         p.TDEEVariance,
		PreviousWeightKg: p.PreviousWeightKg,
	})
	if err != nil {
		return false, fmt.Errorf("failed to restore estimator: %w", err)
	}

	for _, r := range records {
		// Missing intake counts as zero rather than skipping the day.
		if _, err := est.Update(r.WeightKg, r.CaloriesOrZero()); err != nil {
			return false, fmt.Errorf("record %s: %w", timeutil.FormatDate(r.Date), err)
		}
	}

	state := est.State()
	last := records[len(records)-1].Date
	p.TDEEEstimate = state.TDEEEstimate
	p.TDEEVariance = state.Variance
	p.PreviousWeightKg = state.PreviousWeightKg
	p.TDEEUpdatedAt = &now
	p.LastProgressOn = &last
	if err := w.repo.SaveProfile(ctx, &p); err != nil {
		return false, fmt.Errorf("failed to save profile: %w", err)
	}

	monitoring.Ctx(ctx).Debug().
		Str("profile_id", p.ID).
		Int("records", len(records)).
		Float64("tdee", state.TDEEEstimate).
		Msg("tdee updated")
	return true, nil
}

// newRecords returns the records dated after watermark. records are in
// ascending date order.
func newRecords(records []db.ProgressRecord, watermark *time.Time) []db.ProgressRecord {
	if watermark == nil {
		return records
	}
	for i, r := range records {
		if r.Date.After(*watermark) {
			return records[i:]
		}
	}
	return nil
}
