package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

func (s *pgStore) CreateSchedule(ctx context.Context, sc *model.Schedule) error {
	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	const q = `
	INSERT INTO schedules (id, channel, start_at, target_seconds, status, total_seconds, item_count, created_at)
	VALUES ($1, $2, $3, $4, $5, 0, 0, $6);`
	if _, err := s.db.ExecContext(ctx, q, sc.ID, sc.Channel, sc.StartAt, sc.TargetSeconds, sc.Status, sc.CreatedAt); err != nil {
		log.Error().Err(err).Str("schedule_id", sc.ID.String()).Msg("CreateSchedule failed")
		return err
	}
	return nil
}

// AppendItem inserts the item and claims the asset in one transaction. The
// metadata row is locked first so concurrent builds serialize on the asset; a
// build that finds the asset already airing in an overlapping window of another
// schedule gets ErrAssetConflict.
func (s *pgStore) AppendItem(ctx context.Context, sc model.Schedule, item model.ScheduledItem) error {
	airStart := item.AirTime(sc.StartAt)
	airEnd := airStart.Add(time.Duration(item.DurationSeconds) * time.Second)

	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var locked int
		if err := tx.GetContext(ctx, &locked, `
			SELECT asset_id FROM scheduling_metadata WHERE asset_id = $1 FOR UPDATE;`, item.AssetID); err != nil {
			return notFound(err)
		}

		var conflict bool
		if err := tx.GetContext(ctx, &conflict, `
			SELECT EXISTS (
			  SELECT 1
			    FROM scheduled_items i
			    JOIN schedules s ON s.id = i.schedule_id
			   WHERE i.asset_id = $1
			     AND s.id <> $2
			     AND s.status <> 'failed'
			     AND tstzrange(s.start_at + make_interval(secs => i.start_offset_seconds),
			                   s.start_at + make_interval(secs => i.start_offset_seconds + i.duration_seconds), '[)')
			         && tstzrange($3, $4, '[)')
			);`, item.AssetID, sc.ID, airStart, airEnd); err != nil {
			return err
		}
		if conflict {
			return ErrAssetConflict
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_items
			  (schedule_id, sequence, asset_id, category, start_offset_seconds, duration_seconds,
			   delay_factor, post_reset, featured, pool_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`,
			sc.ID, item.Sequence, item.AssetID, string(item.Category), item.StartOffsetSeconds,
			item.DurationSeconds, item.DelayFactor, item.PostReset, item.Featured, item.PoolID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE scheduling_metadata
			   SET total_airings     = total_airings + 1,
			       last_scheduled_at = GREATEST(COALESCE(last_scheduled_at, $2), $2)
			 WHERE asset_id = $1;`, item.AssetID, airStart); err != nil {
			return err
		}

		if item.PoolID != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE rotation_records
				   SET scheduled_count   = scheduled_count + 1,
				       last_scheduled_at = GREATEST(COALESCE(last_scheduled_at, $3), $3)
				 WHERE pool_id = $1 AND asset_id = $2;`, *item.PoolID, item.AssetID, airStart); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE schedules
			   SET item_count    = item_count + 1,
			       total_seconds = GREATEST(total_seconds, $2)
			 WHERE id = $1;`, sc.ID, item.EndOffsetSeconds())
		return err
	})
	if err != nil && err != ErrAssetConflict {
		log.Error().Err(err).
			Str("schedule_id", sc.ID.String()).
			Int("asset_id", item.AssetID).
			Int("sequence", item.Sequence).
			Msg("AppendItem failed")
	}
	return err
}

func (s *pgStore) FinishSchedule(
	ctx context.Context,
	id uuid.UUID,
	status model.ScheduleStatus,
	totalSeconds, itemCount int,
	reason *string,
	at time.Time,
) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE schedules
		   SET status         = $2,
		       total_seconds  = $3,
		       item_count     = $4,
		       failure_reason = $5,
		       completed_at   = $6
		 WHERE id = $1;`,
		id, status, totalSeconds, itemCount, reason, at)
	if err != nil {
		log.Error().Err(err).Str("schedule_id", id.String()).Msg("FinishSchedule failed")
	}
	return err
}

func (s *pgStore) GetSchedule(ctx context.Context, id uuid.UUID) (model.Schedule, error) {
	var sc model.Schedule
	const q = `
	SELECT id, channel, start_at, target_seconds, status, total_seconds, item_count,
	       failure_reason, created_at, completed_at
	  FROM schedules
	 WHERE id = $1;`
	if err := s.db.GetContext(ctx, &sc, q, id); err != nil {
		log.Error().Err(err).Str("schedule_id", id.String()).Msg("GetSchedule failed")
		return model.Schedule{}, notFound(err)
	}

	const items = `
	SELECT schedule_id, sequence, asset_id, category, start_offset_seconds, duration_seconds,
	       delay_factor, post_reset, featured, pool_id
	  FROM scheduled_items
	 WHERE schedule_id = $1
	 ORDER BY sequence;`
	if err := s.db.SelectContext(ctx, &sc.Items, items, id); err != nil {
		log.Error().Err(err).Str("schedule_id", id.String()).Msg("GetSchedule: items query failed")
		return model.Schedule{}, err
	}
	return sc, nil
}

// UpdateItemOffsets rewrites start offsets and durations in bulk and updates the schedule total.
func (s *pgStore) UpdateItemOffsets(ctx context.Context, id uuid.UUID, items []model.ScheduledItem) error {
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		total := 0
		for _, it := range items {
			if _, err := tx.ExecContext(ctx, `
				UPDATE scheduled_items
				   SET start_offset_seconds = $3,
				       duration_seconds     = $4
				 WHERE schedule_id = $1 AND sequence = $2;`,
				id, it.Sequence, it.StartOffsetSeconds, it.DurationSeconds); err != nil {
				return err
			}
			if end := it.EndOffsetSeconds(); end > total {
				total = end
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE schedules SET total_seconds = $2 WHERE id = $1;`, id, total)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("schedule_id", id.String()).Msg("UpdateItemOffsets failed")
	}
	return err
}
