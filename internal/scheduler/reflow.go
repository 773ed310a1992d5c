package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

// Reflow recomputes start offsets from the assets' current durations, for
// when assets are re-encoded after a schedule was built. Items keep their
// order; only offsets and durations change.
func (b *Builder) Reflow(ctx context.Context, id uuid.UUID) (model.Schedule, error) {
	sc, err := b.store.GetSchedule(ctx, id)
	if err != nil {
		return model.Schedule{}, err
	}
	if sc.Status == model.ScheduleBuilding {
		return model.Schedule{}, fmt.Errorf("%w: schedule %s is still building", ErrInvalidRequest, id)
	}

	ids := make([]int, 0, len(sc.Items))
	for _, it := range sc.Items {
		ids = append(ids, it.AssetID)
	}
	assets, err := b.store.AssetsByIDs(ctx, ids)
	if err != nil {
		return model.Schedule{}, err
	}

	items := reflowItems(sc.Items, assets)
	err = b.cfg.Backoff.Do(ctx, "update offsets", func(ctx context.Context) error {
		return b.store.UpdateItemOffsets(ctx, id, items)
	})
	if err != nil {
		return model.Schedule{}, err
	}

	sc.Items = items
	sc.TotalSeconds = 0
	if n := len(items); n > 0 {
		sc.TotalSeconds = items[n-1].EndOffsetSeconds()
	}
	b.log.Info().
		Str("schedule_id", id.String()).
		Int("items", len(items)).
		Int("total_seconds", sc.TotalSeconds).
		Msg("schedule reflowed")
	return sc, nil
}

// reflowItems lays items back to back in sequence order. Items whose asset is
// gone keep their recorded duration.
func reflowItems(in []model.ScheduledItem, assets map[int]model.Asset) []model.ScheduledItem {
	items := append([]model.ScheduledItem(nil), in...)
	sort.Slice(items, func(i, j int) bool { return items[i].Sequence < items[j].Sequence })

	offset := 0
	for i := range items {
		if a, ok := assets[items[i].AssetID]; ok && a.DurationSeconds > 0 {
			items[i].DurationSeconds = a.DurationSeconds
		}
		items[i].StartOffsetSeconds = offset
		offset += items[i].DurationSeconds
	}
	return items
}
