package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/calorie.report/internal/stats"
	"github.com/banshee-data/calorie.report/internal/timeutil"
)

// ProgressRecord is one day's self-reported weight and intake.
type ProgressRecord struct {
	ID               int64     `json:"id"`
	ProfileID        string    `json:"profile_id"`
	Date             time.Time `json:"date"` // midnight UTC
	WeightKg         float64   `json:"weight_kg"`
	ConsumedCalories *float64  `json:"consumed_calories"` // nil when not logged
}

// CaloriesOrZero returns the logged intake, treating a missing value as 0.
func (r ProgressRecord) CaloriesOrZero() float64 {
	if r.ConsumedCalories == nil {
		return 0
	}
	return *r.ConsumedCalories
}

// ProfileProgress pairs a profile with a window of its progress records in
// ascending date order.
type ProfileProgress struct {
	Profile Profile
	Records []ProgressRecord
}

func (r *ProgressRecord) validate() error {
	if r.ProfileID == "" {
		return stats.Invalidf("profile_id", "must not be empty")
	}
	if r.Date.IsZero() {
		return stats.Invalidf("date", "is required")
	}
	if !(r.WeightKg > 0) || math.IsInf(r.WeightKg, 0) {
		return stats.Invalidf("weight_kg", "must be positive, got %v", r.WeightKg)
	}
	if c := r.ConsumedCalories; c != nil && (!(*c >= 0) || math.IsInf(*c, 0)) {
		return stats.Invalidf("consumed_calories", "must be non-negative, got %v", *c)
	}
	return nil
}

// RecordProgress stores r, replacing any existing record for the same
// profile and calendar day. r.ID is set to the stored row's ID.
func (db *DB) RecordProgress(ctx context.Context, r *ProgressRecord) error {
	if err := r.validate(); err != nil {
		return err
	}
	if err := db.profileExists(ctx, r.ProfileID); err != nil {
		return err
	}
	r.Date = timeutil.Day(r.Date)

	err := db.QueryRowContext(ctx, `
		INSERT INTO progress (profile_id, recorded_on, weight_kg, consumed_calories, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (profile_id, recorded_on) DO UPDATE SET
			weight_kg = excluded.weight_kg,
			consumed_calories = excluded.consumed_calories
		RETURNING id`,
		r.ProfileID, timeutil.FormatDate(r.Date), r.WeightKg, r.ConsumedCalories, time.Now().Unix(),
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	return nil
}

// WeightHistory returns every progress record for a profile in ascending
// date order.
func (db *DB) WeightHistory(ctx context.Context, profileID string) ([]ProgressRecord, error) {
	if err := db.profileExists(ctx, profileID); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, profile_id, recorded_on, weight_kg, consumed_calories
		FROM progress
		WHERE profile_id = ?
		ORDER BY recorded_on ASC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight history: %w", err)
	}
	defer rows.Close()

	var out []ProgressRecord
	for rows.Next() {
		rec, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read weight history: %w", err)
	}
	return out, nil
}

// FindProfilesWithRecentProgress returns the profiles having at least
// minRecords progress records dated within the lookbackDays days up to and
// including now, each with exactly those records in ascending date order.
func (db *DB) FindProfilesWithRecentProgress(ctx context.Context, lookbackDays, minRecords int, now time.Time) ([]ProfileProgress, error) {
	if lookbackDays < 1 {
		return nil, stats.Invalidf("lookback_days", "must be at least 1, got %d", lookbackDays)
	}
	if minRecords < 1 {
		return nil, stats.Invalidf("min_records", "must be at least 1, got %d", minRecords)
	}
	end := timeutil.Day(now)
	from := timeutil.FormatDate(end.AddDate(0, 0, -lookbackDays))
	to := timeutil.FormatDate(end)

	rows, err := db.QueryContext(ctx, `
		SELECT p.id, p.name, p.tdee_estimate, p.tdee_variance, p.previous_weight_kg,
			p.tdee_updated_at, p.last_progress_on, p.created_at, p.updated_at,
			g.id, g.profile_id, g.recorded_on, g.weight_kg, g.consumed_calories
		FROM profile p
		JOIN progress g ON g.profile_id = p.id
		WHERE g.recorded_on BETWEEN ? AND ?
			AND p.id IN (
				SELECT profile_id FROM progress
				WHERE recorded_on BETWEEN ? AND ?
				GROUP BY profile_id
				HAVING COUNT(*) >= ?
			)
		ORDER BY p.id, g.recorded_on ASC`,
		from, to, from, to, minRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent progress: %w", err)
	}
	defer rows.Close()

	var out []ProfileProgress
	for rows.Next() {
		var (
			pr         profileRow
			rec        ProgressRecord
			recordedOn string
			calories   sql.NullFloat64
		)
		dest := append(pr.dest(), &rec.ID, &rec.ProfileID, &recordedOn, &rec.WeightKg, &calories)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan recent progress: %w", err)
		}
		if err := fillProgress(&rec, recordedOn, calories); err != nil {
			return nil, err
		}

		if n := len(out); n > 0 && out[n-1].Profile.ID == rec.ProfileID {
			out[n-1].Records = append(out[n-1].Records, rec)
			continue
		}
		p, err := pr.profile()
		if err != nil {
			return nil, err
		}
		out = append(out, ProfileProgress{Profile: p, Records: []ProgressRecord{rec}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recent progress: %w", err)
	}
	return out, nil
}

func (db *DB) profileExists(ctx context.Context, id string) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM profile WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up profile: %w", err)
	}
	return nil
}

func scanProgress(row rowScanner) (ProgressRecord, error) {
	var (
		rec        ProgressRecord
		recordedOn string
		calories   sql.NullFloat64
	)
	if err := row.Scan(&rec.ID, &rec.ProfileID, &recordedOn, &rec.WeightKg, &calories); err != nil {
		return rec, fmt.Errorf("failed to scan progress: %w", err)
	}
	return rec, fillProgress(&rec, recordedOn, calories)
}

func fillProgress(rec *ProgressRecord, recordedOn string, calories sql.NullFloat64) error {
	d, err := timeutil.ParseDate(recordedOn)
	if err != nil {
		return fmt.Errorf("bad recorded_on %q: %w", recordedOn, err)
	}
	rec.Date = d
	if calories.Valid {
		c := calories.Float64
		rec.ConsumedCalories = &c
	}
	return nil
}
