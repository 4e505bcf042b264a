package db

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/calorie.report/internal/stats"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "calorie.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(v float64) *float64 { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func createProfile(t *testing.T, db *DB, name string) *Profile {
	t.Helper()
	p := &Profile{Name: name, TDEEEstimate: 2000, TDEEVariance: 10000}
	require.NoError(t, db.CreateProfile(context.Background(), p))
	return p
}

func TestPragmasApplied(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	// idempotent
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='progress'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, db.MigrateUp())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
}

func TestNewDB_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calorie.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	p := createProfile(t, db, "ada")
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.GetProfile(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Name)
}

func TestProfileCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := createProfile(t, db, "ada")
	assert.Len(t, p.ID, 36)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := db.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("GetProfile mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, got.PreviousWeightKg)
	assert.Nil(t, got.TDEEUpdatedAt)

	updatedAt := day(2025, time.March, 3)
	got.TDEEEstimate = 2350.5
	got.TDEEVariance = 49.9
	got.PreviousWeightKg = ptr(79.2)
	got.TDEEUpdatedAt = &updatedAt
	lastOn := day(2025, time.March, 2)
	got.LastProgressOn = &lastOn
	require.NoError(t, db.SaveProfile(ctx, got))

	again, err := db.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2350.5, again.TDEEEstimate)
	assert.Equal(t, 49.9, again.TDEEVariance)
	require.NotNil(t, again.PreviousWeightKg)
	assert.Equal(t, 79.2, *again.PreviousWeightKg)
	require.NotNil(t, again.TDEEUpdatedAt)
	assert.True(t, updatedAt.Equal(*again.TDEEUpdatedAt))
	require.NotNil(t, again.LastProgressOn)
	assert.Equal(t, lastOn, *again.LastProgressOn)
}

func TestProfile_NotFoundAndValidation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.SaveProfile(ctx, &Profile{ID: "missing", Name: "x", TDEEEstimate: 2000})
	assert.ErrorIs(t, err, ErrNotFound)

	bad := []*Profile{
		{Name: "", TDEEEstimate: 2000},
		{Name: "x", TDEEEstimate: 0},
		{Name: "x", TDEEEstimate: 2000, TDEEVariance: -1},
		{Name: "x", TDEEEstimate: 2000, PreviousWeightKg: ptr(0)},
	}
	for _, p := range bad {
		assert.ErrorIs(t, db.CreateProfile(ctx, p), stats.ErrValidation)
	}
}

func TestRecordProgress_Upsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := createProfile(t, db, "ada")

	first := &ProgressRecord{ProfileID: p.ID, Date: day(2025, 1, 2), WeightKg: 80}
	require.NoError(t, db.RecordProgress(ctx, first))
	require.NotZero(t, first.ID)

	// same calendar day, different time of day: replaces
	later := time.Date(2025, 1, 2, 20, 30, 0, 0, time.UTC)
	second := &ProgressRecord{ProfileID: p.ID, Date: later, WeightKg: 79.8, ConsumedCalories: ptr(2100)}
	require.NoError(t, db.RecordProgress(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, db.RecordProgress(ctx, &ProgressRecord{ProfileID: p.ID, Date: day(2025, 1, 1), WeightKg: 80.4}))

	history, err := db.WeightHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, day(2025, 1, 1), history[0].Date)
	assert.Nil(t, history[0].ConsumedCalories)
	assert.Equal(t, day(2025, 1, 2), history[1].Date)
	assert.Equal(t, 79.8, history[1].WeightKg)
	require.NotNil(t, history[1].ConsumedCalories)
	assert.Equal(t, 2100.0, *history[1].ConsumedCalories)
}

func TestRecordProgress_Errors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := createProfile(t, db, "ada")

	err := db.RecordProgress(ctx, &ProgressRecord{ProfileID: "missing", Date: day(2025, 1, 1), WeightKg: 80})
	assert.ErrorIs(t, err, ErrNotFound)

	bad := []*ProgressRecord{
		{ProfileID: p.ID, Date: day(2025, 1, 1), WeightKg: 0},
		{ProfileID: p.ID, Date: day(2025, 1, 1), WeightKg: -3},
		{ProfileID: p.ID, Date: day(2025, 1, 1), WeightKg: 80, ConsumedCalories: ptr(-1)},
		{ProfileID: p.ID, WeightKg: 80},
		{Date: day(2025, 1, 1), WeightKg: 80},
	}
	for _, r := range bad {
		assert.ErrorIs(t, db.RecordProgress(ctx, r), stats.ErrValidation)
	}

	_, err = db.WeightHistory(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := db.WeightHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCaloriesOrZero(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, ProgressRecord{}.CaloriesOrZero())
	assert.Equal(t, 1800.0, ProgressRecord{ConsumedCalories: ptr(1800)}.CaloriesOrZero())
}

func TestFindProfilesWithRecentProgress(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	active := createProfile(t, db, "active")
	sparse := createProfile(t, db, "sparse")
	stale := createProfile(t, db, "stale")
	createProfile(t, db, "empty")

	record := func(id string, d time.Time, w float64) {
		t.Helper()
		require.NoError(t, db.RecordProgress(ctx, &ProgressRecord{ProfileID: id, Date: d, WeightKg: w}))
	}
	// active: one old record outside the window plus four inside, out of order
	record(active.ID, day(2025, 2, 1), 82)
	record(active.ID, day(2025, 3, 14), 80.1)
	record(active.ID, day(2025, 3, 1), 80.9) // window start, inclusive
	record(active.ID, day(2025, 3, 10), 80.5)
	record(active.ID, day(2025, 3, 15), 80.0) // today, inclusive
	// sparse: only two in the window
	record(sparse.ID, day(2025, 3, 12), 70)
	record(sparse.ID, day(2025, 3, 13), 69.9)
	// stale: plenty, all too old
	for i := 0; i < 5; i++ {
		record(stale.ID, day(2025, 1, 1+i), 90)
	}

	got, err := db.FindProfilesWithRecentProgress(ctx, 14, 3, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].Profile.ID)
	assert.Equal(t, "active", got[0].Profile.Name)

	var dates []time.Time
	for _, r := range got[0].Records {
		dates = append(dates, r.Date)
	}
	assert.Equal(t, []time.Time{day(2025, 3, 1), day(2025, 3, 10), day(2025, 3, 14), day(2025, 3, 15)}, dates)

	got, err = db.FindProfilesWithRecentProgress(ctx, 14, 2, now)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = db.FindProfilesWithRecentProgress(ctx, 0, 3, now)
	assert.ErrorIs(t, err, stats.ErrValidation)
	_, err = db.FindProfilesWithRecentProgress(ctx, 14, 0, now)
	assert.ErrorIs(t, err, stats.ErrValidation)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	createProfile(t, db, "ada")

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, len(raw) > 16 && string(raw[:15]) == "SQLite format 3", "backup is not a sqlite file")
}
