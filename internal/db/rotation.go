package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

func (s *pgStore) GetPool(ctx context.Context, poolID int) (model.RotationPool, error) {
	var p model.RotationPool
	err := s.db.GetContext(ctx, &p, `SELECT id, name, created_at FROM rotation_pools WHERE id = $1;`, poolID)
	if err != nil {
		log.Error().Err(err).Int("pool_id", poolID).Msg("GetPool failed")
		return model.RotationPool{}, notFound(err)
	}
	return p, nil
}

func (s *pgStore) PoolMembers(ctx context.Context, poolID int) ([]model.PoolMember, error) {
	const q = `
	SELECT r.pool_id, r.scheduled_count, r.last_scheduled_at AS pool_last_scheduled_at,
	       a.id, a.title, a.category, a.duration_seconds, a.engagement_score, a.encoded_at, a.created_at,
	       m.asset_id, m.last_scheduled_at, m.total_airings, m.content_expires_at, m.go_live_at,
	       m.available_for_scheduling, m.featured
	  FROM rotation_records r
	  JOIN assets a              ON a.id = r.asset_id
	  JOIN scheduling_metadata m ON m.asset_id = a.id
	 WHERE r.pool_id = $1
	 ORDER BY a.id;`
	// rotation_records and scheduling_metadata both carry last_scheduled_at
	type poolRow struct {
		PoolID              int        `db:"pool_id"`
		ScheduledCount      int        `db:"scheduled_count"`
		PoolLastScheduledAt *time.Time `db:"pool_last_scheduled_at"`
		model.Candidate
	}
	var scanned []poolRow
	if err := s.db.SelectContext(ctx, &scanned, q, poolID); err != nil {
		log.Error().Err(err).Int("pool_id", poolID).Msg("PoolMembers failed")
		return nil, err
	}
	out := make([]model.PoolMember, 0, len(scanned))
	for _, r := range scanned {
		out = append(out, model.PoolMember{
			RotationRecord: model.RotationRecord{
				PoolID:          r.PoolID,
				AssetID:         r.Candidate.ID,
				ScheduledCount:  r.ScheduledCount,
				LastScheduledAt: r.PoolLastScheduledAt,
			},
			Candidate: r.Candidate,
		})
	}
	return out, nil
}

type dayAssignmentRow struct {
	PoolID   int           `db:"pool_id"`
	DayIndex int           `db:"day_index"`
	DayStart time.Time     `db:"day_start"`
	DayEnd   time.Time     `db:"day_end"`
	AssetIDs pq.Int64Array `db:"asset_ids"`
}

func (r dayAssignmentRow) toModel() model.DayAssignment {
	ids := make([]int, len(r.AssetIDs))
	for i, id := range r.AssetIDs {
		ids[i] = int(id)
	}
	return model.DayAssignment{PoolID: r.PoolID, DayIndex: r.DayIndex, Start: r.DayStart, End: r.DayEnd, AssetIDs: ids}
}

// SaveDayAssignments replaces the pool's assignments for the covered days.
func (s *pgStore) SaveDayAssignments(ctx context.Context, poolID int, days []model.DayAssignment) error {
	if len(days) == 0 {
		return nil
	}
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, d := range days {
			ids := make(pq.Int64Array, len(d.AssetIDs))
			for i, id := range d.AssetIDs {
				ids[i] = int64(id)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO rotation_assignments (pool_id, day_start, day_end, day_index, asset_ids)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (pool_id, day_start)
				DO UPDATE SET day_end = EXCLUDED.day_end,
				              day_index = EXCLUDED.day_index,
				              asset_ids = EXCLUDED.asset_ids;`,
				poolID, d.Start, d.End, d.DayIndex, ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int("pool_id", poolID).Int("days", len(days)).Msg("SaveDayAssignments failed")
	}
	return err
}

func (s *pgStore) DayAssignmentAt(ctx context.Context, poolID int, at time.Time) (model.DayAssignment, error) {
	var r dayAssignmentRow
	const q = `
	SELECT pool_id, day_index, day_start, day_end, asset_ids
	  FROM rotation_assignments
	 WHERE pool_id = $1 AND day_start <= $2 AND day_end > $2
	 ORDER BY day_start DESC
	 LIMIT 1;`
	if err := s.db.GetContext(ctx, &r, q, poolID, at); err != nil {
		return model.DayAssignment{}, notFound(err)
	}
	return r.toModel(), nil
}

func (s *pgStore) ListDayAssignments(ctx context.Context, poolID int, from, to time.Time) ([]model.DayAssignment, error) {
	var rows []dayAssignmentRow
	const q = `
	SELECT pool_id, day_index, day_start, day_end, asset_ids
	  FROM rotation_assignments
	 WHERE pool_id = $1 AND day_start >= $2 AND day_start < $3
	 ORDER BY day_start;`
	if err := s.db.SelectContext(ctx, &rows, q, poolID, from, to); err != nil {
		log.Error().Err(err).Int("pool_id", poolID).Msg("ListDayAssignments failed")
		return nil, err
	}
	out := make([]model.DayAssignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
