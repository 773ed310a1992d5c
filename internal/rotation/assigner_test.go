package rotation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/retry"
)

var start = time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC)

func seedPool(t *testing.T, s *db.MemoryStore, size int, mutate func(i int, m *model.SchedulingMetadata)) int {
	t.Helper()
	ids := make([]int, size)
	for i := range ids {
		m := model.SchedulingMetadata{AvailableForScheduling: true}
		if mutate != nil {
			mutate(i, &m)
		}
		ids[i] = s.AddAsset(model.Asset{Title: "greeting", Category: model.CategoryMicro, DurationSeconds: 30}, m)
	}
	return s.AddPool("holiday greetings", ids...)
}

func usage(days []model.DayAssignment) map[int]int {
	out := make(map[int]int)
	for _, d := range days {
		for _, id := range d.AssetIDs {
			out[id]++
		}
	}
	return out
}

// spread is max-min usage; members missing from counts were never used.
func spread(counts map[int]int, members int) int {
	lo, hi := -1, 0
	for _, c := range counts {
		if lo < 0 || c < lo {
			lo = c
		}
		hi = max(hi, c)
	}
	if lo < 0 || len(counts) < members {
		lo = 0
	}
	return hi - lo
}

func newAssigner(s Store, seed uint64) *Assigner {
	return NewAssigner(s, NewSeeded(seed),
		WithLogger(zerolog.Nop()),
		WithBackoff(retry.Backoff{Retries: 2, Initial: time.Millisecond, Max: 2 * time.Millisecond}),
	)
}

func TestAssign_TenMembersSevenDaysFourPerDay(t *testing.T) {
	s := db.NewMemoryStore()
	pool := seedPool(t, s, 10, nil)

	days, err := newAssigner(s, 42).Assign(context.Background(), pool, start, 7, 4)
	require.NoError(t, err)
	require.Len(t, days, 7)

	counts := usage(days)
	assert.Len(t, counts, 10)
	assert.LessOrEqual(t, spread(counts, 10), 1)

	for i, d := range days {
		assert.Equal(t, i, d.DayIndex)
		assert.Equal(t, start.AddDate(0, 0, i), d.Start)
		assert.Equal(t, d.Start.Add(24*time.Hour), d.End)
		assert.Len(t, d.AssetIDs, 4)
		assert.Len(t, model.NewAssetSet(d.AssetIDs...), 4, "no duplicates within a day")
	}
}

func TestAssign_ExactMultipleIsPerfectlyEven(t *testing.T) {
	s := db.NewMemoryStore()
	pool := seedPool(t, s, 7, nil)

	days, err := newAssigner(s, 7).Assign(context.Background(), pool, start, 7, 4)
	require.NoError(t, err)

	counts := usage(days)
	require.Len(t, counts, 7)
	for id, n := range counts {
		assert.Equal(t, 4, n, "asset %d", id)
	}
}

func TestAssign_SpreadBound(t *testing.T) {
	for size := 1; size <= 12; size++ {
		for perDay := 1; perDay <= size; perDay++ {
			for numDays := 1; numDays <= 10; numDays++ {
				s := db.NewMemoryStore()
				pool := seedPool(t, s, size, nil)
				days, err := newAssigner(s, uint64(size*100+perDay*10+numDays)).
					Assign(context.Background(), pool, start, numDays, perDay)
				require.NoError(t, err)

				total := numDays * perDay
				bound := (total+size-1)/size - total/size
				assert.LessOrEqual(t, spread(usage(days), size), bound,
					"size %d, %d/day over %d days", size, perDay, numDays)
			}
		}
	}
}

func TestAssign_SameSeedSameAssignments(t *testing.T) {
	ctx := context.Background()
	s := db.NewMemoryStore()
	pool := seedPool(t, s, 10, nil)

	first, err := newAssigner(s, 99).Assign(ctx, pool, start, 14, 3)
	require.NoError(t, err)
	second, err := newAssigner(s, 99).Assign(ctx, pool, start, 14, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssign_UnderCapacityProceeds(t *testing.T) {
	s := db.NewMemoryStore()
	pool := seedPool(t, s, 5, func(i int, m *model.SchedulingMetadata) {
		if i >= 3 {
			m.AvailableForScheduling = false
		}
	})

	days, err := newAssigner(s, 1).Assign(context.Background(), pool, start, 3, 4)
	require.NoError(t, err)
	for _, d := range days {
		assert.Len(t, d.AssetIDs, 3)
	}
}

func TestAssign_EligibilityIsCheckedPerDay(t *testing.T) {
	s := db.NewMemoryStore()
	expiresAt := start.AddDate(0, 0, 2)
	liveAt := start.AddDate(0, 0, 2)
	pool := seedPool(t, s, 4, func(i int, m *model.SchedulingMetadata) {
		switch i {
		case 0:
			m.ContentExpiresAt = &expiresAt
		case 1:
			m.GoLiveAt = &liveAt
		}
	})
	members, err := s.PoolMembers(context.Background(), pool)
	require.NoError(t, err)
	expiring, late := members[0].AssetID, members[1].AssetID

	days, err := newAssigner(s, 5).Assign(context.Background(), pool, start, 4, 2)
	require.NoError(t, err)
	for _, d := range days {
		ids := model.NewAssetSet(d.AssetIDs...)
		if d.DayIndex >= 2 {
			assert.False(t, ids.Has(expiring), "day %d", d.DayIndex)
		} else {
			assert.False(t, ids.Has(late), "day %d", d.DayIndex)
		}
	}
}

func TestAssign_PersistsAssignments(t *testing.T) {
	ctx := context.Background()
	s := db.NewMemoryStore()
	pool := seedPool(t, s, 6, nil)

	days, err := newAssigner(s, 3).Assign(ctx, pool, start, 2, 2)
	require.NoError(t, err)

	got, err := s.DayAssignmentAt(ctx, pool, start.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, days[1].AssetIDs, got.AssetIDs)
}

func TestAssign_Errors(t *testing.T) {
	ctx := context.Background()
	s := db.NewMemoryStore()
	a := newAssigner(s, 1)

	_, err := a.Assign(ctx, 1, start, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = a.Assign(ctx, 1, start, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = a.Assign(ctx, 404, start, 1, 1)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestAssign_RetriesTransientStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := db.NewMemoryStore()
	pool := seedPool(t, s, 4, nil)
	reset := &db.TransientError{Err: errors.New("connection reset")}
	s.Fail("GetPool", reset)
	s.Fail("PoolMembers", reset, reset)
	s.Fail("SaveDayAssignments", reset)

	days, err := newAssigner(s, 5).Assign(ctx, pool, start, 3, 2)
	require.NoError(t, err)
	assert.Len(t, days, 3)
	assert.Equal(t, 2, s.Calls("GetPool"))
	assert.Equal(t, 3, s.Calls("PoolMembers"))
	assert.Equal(t, 2, s.Calls("SaveDayAssignments"))

	got, err := s.DayAssignmentAt(ctx, pool, start)
	require.NoError(t, err)
	assert.Equal(t, days[0].AssetIDs, got.AssetIDs)
}

func TestAssign_StoreDownAfterRetries(t *testing.T) {
	ctx := context.Background()
	s := db.NewMemoryStore()
	pool := seedPool(t, s, 4, nil)
	down := &db.TransientError{Err: errors.New("connection refused")}
	s.Fail("PoolMembers", down, down, down)

	days, err := newAssigner(s, 5).Assign(ctx, pool, start, 3, 2)
	assert.Nil(t, days)
	assert.ErrorIs(t, err, retry.ErrTransientStore)
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 3, s.Calls("PoolMembers"))
	assert.Zero(t, s.Calls("SaveDayAssignments"))

	// a permanent error is not retried
	s.Fail("GetPool", db.ErrNotFound)
	_, err = newAssigner(s, 5).Assign(ctx, pool, start, 1, 1)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Equal(t, 2, s.Calls("GetPool"))
}
