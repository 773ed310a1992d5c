package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

func openPG(t *testing.T) (*sqlx.DB, Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, store, err := OpenTestStore(ctx, "../../migrations")
	if errors.Is(err, ErrNoTestDatabase) {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, store
}

func insertAsset(t *testing.T, conn *sqlx.DB, category model.Category, seconds int, last *time.Time) int {
	t.Helper()
	var id int
	require.NoError(t, conn.Get(&id, `
		INSERT INTO assets (title, category, duration_seconds) VALUES ('t', $1, $2) RETURNING id;`,
		string(category), seconds))
	_, err := conn.Exec(`
		INSERT INTO scheduling_metadata (asset_id, last_scheduled_at) VALUES ($1, $2);`, id, last)
	require.NoError(t, err)
	return id
}

func TestPG_CandidateQueryMatchesMemoryStore(t *testing.T) {
	conn, store := openPG(t)
	ctx := context.Background()
	mem := NewMemoryStore()

	lasts := []*time.Time{nil, ptr(t0.Add(-2 * time.Hour)), ptr(t0.Add(-30 * time.Hour)), nil}
	for _, last := range lasts {
		id := insertAsset(t, conn, model.CategoryShort, 1800, last)
		m := available()
		m.LastScheduledAt = last
		mem.AddAsset(model.Asset{ID: id, Category: model.CategoryShort, DurationSeconds: 1800}, m)
	}

	policy := model.DelayPolicy{Category: model.CategoryShort, BaseDelayHours: 24}
	for _, factor := range []float64{1, 0.75, 0.5, 0.25, 0} {
		f := CandidateFilter{Category: model.CategoryShort, AsOf: t0, DelayFactor: factor, Policy: policy, Exclude: model.NewAssetSet(4)}
		want, err := mem.QueryCandidates(ctx, f)
		require.NoError(t, err)
		got, err := store.QueryCandidates(ctx, f)
		require.NoError(t, err)

		require.Len(t, got, len(want), "factor %.2f", factor)
		for i := range want {
			assert.Equal(t, want[i].ID, got[i].ID, "factor %.2f position %d", factor, i)
		}
	}
}

func TestPG_AppendItemSerializesConcurrentClaims(t *testing.T) {
	conn, store := openPG(t)
	ctx := context.Background()
	asset := insertAsset(t, conn, model.CategoryShort, 1800, nil)

	const builds = 4
	schedules := make([]*model.Schedule, builds)
	for i := range schedules {
		schedules[i] = &model.Schedule{Channel: "ch", StartAt: t0, TargetSeconds: 3600, Status: model.ScheduleBuilding, CreatedAt: t0}
		require.NoError(t, store.CreateSchedule(ctx, schedules[i]))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for _, sc := range schedules {
		wg.Add(1)
		go func(sc model.Schedule) {
			defer wg.Done()
			err := store.AppendItem(ctx, sc, model.ScheduledItem{Sequence: 1, AssetID: asset, Category: model.CategoryShort, DurationSeconds: 1800, DelayFactor: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAssetConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(*sc)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, builds-1, conflicts)

	c, err := store.GetCandidate(ctx, asset)
	require.NoError(t, err)
	assert.Equal(t, 1, c.TotalAirings)
}

func TestPG_ResetCategoryIdempotent(t *testing.T) {
	conn, store := openPG(t)
	ctx := context.Background()
	a := insertAsset(t, conn, model.CategoryShort, 60, ptr(t0))
	b := insertAsset(t, conn, model.CategoryLong, 60, ptr(t0))

	n, err := store.ResetCategory(ctx, model.CategoryShort, []int{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.ResetCategory(ctx, model.CategoryShort, []int{a, b})
	require.NoError(t, err)
	assert.Zero(t, n)
}
