package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

func TestReflow_RecomputesOffsetsFromCurrentDurations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, shortPolicy)
	ids := f.addN(4, model.CategoryShort, 1800)
	b := f.builder(testConfig(CategorySlot(model.CategoryShort)))

	res := build(t, b, 2*time.Hour)
	require.Equal(t, model.ScheduleCompleted, res.Status)

	f.store.SetDuration(ids[0], 1500)
	f.store.SetDuration(ids[2], 2000)

	sc, err := b.Reflow(ctx, res.ScheduleID)
	require.NoError(t, err)
	require.Len(t, sc.Items, 4)

	offset := 0
	for _, it := range sc.Items {
		assert.Equal(t, offset, it.StartOffsetSeconds)
		offset += it.DurationSeconds
	}
	assert.Equal(t, 1800*4-300+200, offset)
	assert.Equal(t, offset, sc.TotalSeconds)

	stored, err := f.store.GetSchedule(ctx, res.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, offset, stored.TotalSeconds)
	assert.Equal(t, sc.Items, stored.Items)
}

func TestReflowItems_KeepsRecordedDurationForMissingAssets(t *testing.T) {
	in := []model.ScheduledItem{
		{Sequence: 2, AssetID: 2, StartOffsetSeconds: 60, DurationSeconds: 120},
		{Sequence: 1, AssetID: 1, StartOffsetSeconds: 0, DurationSeconds: 60},
	}
	out := reflowItems(in, map[int]model.Asset{1: {ID: 1, DurationSeconds: 90}})

	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Sequence)
	assert.Equal(t, 90, out[0].DurationSeconds)
	assert.Equal(t, 90, out[1].StartOffsetSeconds)
	assert.Equal(t, 120, out[1].DurationSeconds)
	assert.Equal(t, 60, in[0].StartOffsetSeconds, "input is not modified")
}
