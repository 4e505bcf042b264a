package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/calorie.report/internal/stats"
	"github.com/banshee-data/calorie.report/internal/timeutil"
)

// Profile is one user's persisted TDEE belief.
type Profile struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	TDEEEstimate     float64    `json:"tdee_estimate"`
	TDEEVariance     float64    `json:"tdee_variance"`
	PreviousWeightKg *float64   `json:"previous_weight_kg"`
	TDEEUpdatedAt    *time.Time `json:"tdee_updated_at"`  // nil until the first job run
	LastProgressOn   *time.Time `json:"last_progress_on"` // newest record folded into the estimate
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

const profileColumns = `id, name, tdee_estimate, tdee_variance, previous_weight_kg,
	tdee_updated_at, last_progress_on, created_at, updated_at`

func (p *Profile) validate() error {
	if p.Name == "" {
		return stats.Invalidf("name", "must not be empty")
	}
	if !(p.TDEEEstimate > 0) || math.IsInf(p.TDEEEstimate, 0) {
		return stats.Invalidf("tdee_estimate", "must be positive, got %v", p.TDEEEstimate)
	}
	if !(p.TDEEVariance >= 0) || math.IsInf(p.TDEEVariance, 0) {
		return stats.Invalidf("tdee_variance", "must be non-negative, got %v", p.TDEEVariance)
	}
	if p.PreviousWeightKg != nil && !(*p.PreviousWeightKg > 0) {
		return stats.Invalidf("previous_weight_kg", "must be positive, got %v", *p.PreviousWeightKg)
	}
	return nil
}

// CreateProfile inserts p, assigning a new ID and timestamps.
func (db *DB) CreateProfile(ctx context.Context, p *Profile) error {
	if err := p.validate(); err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Second)
	id := uuid.NewString()

	_, err := db.ExecContext(ctx, `
		INSERT INTO profile (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Name, p.TDEEEstimate, p.TDEEVariance, p.PreviousWeightKg,
		unixOrNil(p.TDEEUpdatedAt), dateOrNil(p.LastProgressOn), now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetProfile retrieves a profile by ID.
func (db *DB) GetProfile(ctx context.Context, id string) (*Profile, error) {
	row := db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profile WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// SaveProfile writes p's name and TDEE state back to the store.
func (db *DB) SaveProfile(ctx context.Context, p *Profile) error {
	if err := p.validate(); err != nil {
		return err
	}
	now := time.Now().UTC().Truncate(time.Second)

	result, err := db.ExecContext(ctx, `
		UPDATE profile SET
			name = ?, tdee_estimate = ?, tdee_variance = ?,
			previous_weight_kg = ?, tdee_updated_at = ?, last_progress_on = ?,
			updated_at = ?
		WHERE id = ?`,
		p.Name, p.TDEEEstimate, p.TDEEVariance,
		p.PreviousWeightKg, unixOrNil(p.TDEEUpdatedAt), dateOrNil(p.LastProgressOn),
		now.Unix(),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("profile %s: %w", p.ID, ErrNotFound)
	}

	p.UpdatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// profileRow holds scan targets for profileColumns.
type profileRow struct {
	p                    Profile
	prevWeight           sql.NullFloat64
	tdeeUpdated          sql.NullInt64
	lastProgressOn       sql.NullString
	createdAt, updatedAt int64
}

func (r *profileRow) dest() []interface{} {
	return []interface{}{
		&r.p.ID, &r.p.Name, &r.p.TDEEEstimate, &r.p.TDEEVariance, &r.prevWeight,
		&r.tdeeUpdated, &r.lastProgressOn, &r.createdAt, &r.updatedAt,
	}
}

func (r *profileRow) profile() (Profile, error) {
	p := r.p
	if r.prevWeight.Valid {
		w := r.prevWeight.Float64
		p.PreviousWeightKg = &w
	}
	if r.tdeeUpdated.Valid {
		t := time.Unix(r.tdeeUpdated.Int64, 0).UTC()
		p.TDEEUpdatedAt = &t
	}
	if r.lastProgressOn.Valid {
		d, err := timeutil.ParseDate(r.lastProgressOn.String)
		if err != nil {
			return p, fmt.Errorf("bad last_progress_on %q: %w", r.lastProgressOn.String, err)
		}
		p.LastProgressOn = &d
	}
	p.CreatedAt = time.Unix(r.createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(r.updatedAt, 0).UTC()
	return p, nil
}

func scanProfile(row rowScanner) (*Profile, error) {
	var r profileRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	p, err := r.profile()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func dateOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return timeutil.FormatDate(timeutil.Day(*t))
}

func unixOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
