package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/playout/internal/app"
	"github.com/Nixie-Tech-LLC/playout/internal/clock"
	"github.com/Nixie-Tech-LLC/playout/internal/config"
	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/scheduler"
	"github.com/Nixie-Tech-LLC/playout/internal/storage"
)

var start = time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	store    *db.MemoryStore
	env      Env
	migrated int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, store: db.NewMemoryStore()}

	noFeatured := time.Duration(0)
	engine := &config.Engine{
		DefaultPolicy: &model.DelayPolicy{BaseDelayHours: 24},
		Pattern:       []scheduler.Slot{scheduler.CategorySlot(model.CategoryShort)},
		Featured:      config.Featured{Interval: &noFeatured},
		StoreRetry:    config.StoreRetry{Retries: 1, Initial: time.Millisecond},
	}
	require.NoError(t, engine.Validate())

	exports := t.TempDir()
	nop := zerolog.Nop()
	h.env = Env{
		Open: func(ctx context.Context) (*app.App, error) {
			return app.Assemble(ctx, app.Deps{
				Store:   h.store,
				Engine:  engine,
				Clock:   clock.NewFixed(start),
				Storage: storage.NewLocalStorage(exports),
				Logger:  &nop,
			})
		},
		Migrate: func(context.Context) error {
			h.migrated++
			return nil
		},
	}
	return h
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root := BuildCLI(h.env)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) addShorts(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = h.store.AddAsset(model.Asset{Title: "clip", Category: model.CategoryShort, DurationSeconds: 900},
			model.SchedulingMetadata{AvailableForScheduling: true})
	}
	return ids
}

func TestMigrate(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("migrate")
	require.NoError(t, err)
	assert.Equal(t, 1, h.migrated)
	assert.Contains(t, out, "migrations applied")
}

func TestBuildReflowExport(t *testing.T) {
	h := newHarness(t)
	h.addShorts(4)

	out, err := h.run("build", "--channel", "main", "--start", "2026-06-01T06:00:00Z", "--hours", "1")
	require.NoError(t, err)

	var res scheduler.BuildResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, model.ScheduleCompleted, res.Status)
	assert.Len(t, res.Items, 4)

	out, err = h.run("reflow", res.ScheduleID.String())
	require.NoError(t, err)
	var sc model.Schedule
	require.NoError(t, json.Unmarshal([]byte(out), &sc))
	assert.Equal(t, 3600, sc.TotalSeconds)

	out, err = h.run("export", res.ScheduleID.String())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), ".json"))
}

func TestBuildFailureExitsNonZero(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("build", "--channel", "main", "--start", "2026-06-01T06:00:00Z", "--hours", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrRotationCycleFailure)

	var res scheduler.BuildResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, model.ScheduleFailed, res.Status)
}

func TestBuildFlagErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("build", "--channel", "main")
	assert.Error(t, err)
	_, err = h.run("build", "--channel", "main", "--start", "tomorrow")
	assert.Error(t, err)
	_, err = h.run("build", "--channel", "main", "--start", "2026-06-01T06:00:00Z", "--pattern", "short,pool:")
	assert.ErrorIs(t, err, scheduler.ErrInvalidRequest)
}

func TestAssignPool(t *testing.T) {
	h := newHarness(t)
	ids := make([]int, 5)
	for i := range ids {
		ids[i] = h.store.AddAsset(model.Asset{Title: "greeting", Category: model.CategoryMicro, DurationSeconds: 30},
			model.SchedulingMetadata{AvailableForScheduling: true})
	}
	pool := h.store.AddPool("greetings", ids...)

	out, err := h.run("assign-pool", "--pool", strconv.Itoa(pool), "--start-date", "2026-06-01", "--days", "5", "--per-day", "2")
	require.NoError(t, err)

	var days []model.DayAssignment
	require.NoError(t, json.Unmarshal([]byte(out), &days))
	require.Len(t, days, 5)

	counts := map[int]int{}
	for _, d := range days {
		for _, id := range d.AssetIDs {
			counts[id]++
		}
	}
	for _, id := range ids {
		assert.Equal(t, 2, counts[id], "asset %d", id)
	}
}

func TestHolds(t *testing.T) {
	h := newHarness(t)
	ids := h.addShorts(1)

	out, err := h.run("hold", "--asset", strconv.Itoa(ids[0]), "--reason", "legal", "--until", "2026-06-02T00:00:00Z")
	require.NoError(t, err)
	var hold model.SchedulingHold
	require.NoError(t, json.Unmarshal([]byte(out), &hold))
	assert.Equal(t, "legal", hold.Reason)

	out, err = h.run("release-hold", strconv.Itoa(hold.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "released")

	_, err = h.run("release-hold", strconv.Itoa(hold.ID))
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = h.run("release-hold", "abc")
	assert.Error(t, err)
}
