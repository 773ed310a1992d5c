package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

// DefaultCandidateLimit bounds one catalog page.
const DefaultCandidateLimit = 100

// CandidateFilter describes one catalog query. A zero DelayFactor suspends the
// replay spacing rule; every other filter still applies. An empty Category
// matches every category; a non-nil Only restricts the result to those ids.
type CandidateFilter struct {
	Category     model.Category
	AsOf         time.Time
	Exclude      model.AssetSet
	Only         model.AssetSet
	DelayFactor  float64
	Policy       model.DelayPolicy
	FeaturedOnly bool
	Limit        int
}

func (f CandidateFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultCandidateLimit
	}
	return f.Limit
}

// Match applies every filter except scheduling holds, which live outside the candidate row.
func (f CandidateFilter) Match(c model.Candidate) bool {
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	if c.DurationSeconds <= 0 {
		return false
	}
	if f.Only != nil && !f.Only.Has(c.ID) {
		return false
	}
	if !c.Eligible(f.AsOf) {
		return false
	}
	if f.Exclude.Has(c.ID) {
		return false
	}
	if f.FeaturedOnly && !c.Featured {
		return false
	}
	return f.SpacingSatisfied(c.SchedulingMetadata)
}

// SpacingSatisfied reports whether enough time has passed since the last airing
// at the filter's delay factor.
func (f CandidateFilter) SpacingSatisfied(m model.SchedulingMetadata) bool {
	if f.DelayFactor <= 0 || m.LastScheduledAt == nil {
		return true
	}
	required := time.Duration(f.DelayFactor * float64(f.Policy.RequiredDelay(m.TotalAirings)))
	return f.AsOf.Sub(*m.LastScheduledAt) >= required
}

var candidateColumns = []string{
	"a.id", "a.title", "a.category", "a.duration_seconds", "a.engagement_score", "a.encoded_at", "a.created_at",
	"m.asset_id", "m.last_scheduled_at", "m.total_airings", "m.content_expires_at", "m.go_live_at",
	"m.available_for_scheduling", "m.featured",
}

func candidateQuery(f CandidateFilter) (string, []any) {
	b := selectFrom("assets a", candidateColumns...).
		Join("JOIN scheduling_metadata m ON m.asset_id = a.id").
		Where("a.duration_seconds > 0").
		Where("m.available_for_scheduling").
		Where("m.content_expires_at IS NULL OR m.content_expires_at > ?", f.AsOf).
		Where("m.go_live_at IS NULL OR m.go_live_at <= ?", f.AsOf).
		Where(`NOT EXISTS (
			SELECT 1 FROM scheduling_holds h
			 WHERE h.asset_id = a.id AND (h.until IS NULL OR h.until > ?))`, f.AsOf)

	if f.Category != "" {
		b.Where("a.category = ?", string(f.Category))
	}
	if f.Only != nil {
		b.Where("a.id = ANY(?)", pq.Array(f.Only.IDs()))
	}
	if f.Exclude.Len() > 0 {
		b.Where("NOT (a.id = ANY(?))", pq.Array(f.Exclude.IDs()))
	}
	if f.FeaturedOnly {
		b.Where("m.featured")
	}
	if f.DelayFactor > 0 {
		b.Where(`m.last_scheduled_at IS NULL
			OR m.last_scheduled_at <= ?::timestamptz - make_interval(secs =>
				?::double precision * (?::double precision + m.total_airings * ?::double precision) * 3600)`,
			f.AsOf, f.DelayFactor, f.Policy.BaseDelayHours, f.Policy.AdditionalDelayPerAiring)
	}

	return b.OrderBy(
		"m.last_scheduled_at ASC NULLS FIRST",
		"m.total_airings ASC",
		"a.encoded_at DESC NULLS LAST",
		"a.id ASC",
	).Limit(f.limit()).Build()
}

func (s *pgStore) QueryCandidates(ctx context.Context, f CandidateFilter) ([]model.Candidate, error) {
	q, args := candidateQuery(f)
	var out []model.Candidate
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		log.Error().Err(err).Str("category", string(f.Category)).Float64("delay_factor", f.DelayFactor).Msg("QueryCandidates failed")
		return nil, err
	}
	return out, nil
}

func (s *pgStore) CategoryAssetIDs(ctx context.Context, category model.Category) ([]int, error) {
	var ids []int
	const q = `SELECT id FROM assets WHERE category = $1 ORDER BY id;`
	if err := s.db.SelectContext(ctx, &ids, q, string(category)); err != nil {
		log.Error().Err(err).Str("category", string(category)).Msg("CategoryAssetIDs failed")
		return nil, err
	}
	return ids, nil
}

// ResetCategory clears last_scheduled_at for the given members of category.
// Rows already cleared are left alone, so running it twice is harmless.
func (s *pgStore) ResetCategory(ctx context.Context, category model.Category, assetIDs []int) (int, error) {
	if len(assetIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduling_metadata m
		   SET last_scheduled_at = NULL
		  FROM assets a
		 WHERE a.id = m.asset_id
		   AND a.category = $1
		   AND m.asset_id = ANY($2)
		   AND m.last_scheduled_at IS NOT NULL;`,
		string(category), pq.Array(assetIDs))
	if err != nil {
		log.Error().Err(err).Str("category", string(category)).Msg("ResetCategory failed")
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *pgStore) RecentlyAiredIDs(ctx context.Context, channel string, from, to time.Time) ([]int, error) {
	var ids []int
	const q = `
	SELECT DISTINCT i.asset_id
	  FROM scheduled_items i
	  JOIN schedules s ON s.id = i.schedule_id
	 WHERE s.channel = $1
	   AND s.status <> 'failed'
	   AND s.start_at + make_interval(secs => i.start_offset_seconds) >= $2
	   AND s.start_at + make_interval(secs => i.start_offset_seconds) <  $3
	 ORDER BY i.asset_id;`
	if err := s.db.SelectContext(ctx, &ids, q, channel, from, to); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("RecentlyAiredIDs failed")
		return nil, err
	}
	return ids, nil
}

func (s *pgStore) GetCandidate(ctx context.Context, assetID int) (model.Candidate, error) {
	q, args := selectFrom("assets a", candidateColumns...).
		Join("JOIN scheduling_metadata m ON m.asset_id = a.id").
		Where("a.id = ?", assetID).
		Build()
	var c model.Candidate
	if err := s.db.GetContext(ctx, &c, q, args...); err != nil {
		log.Error().Err(err).Int("asset_id", assetID).Msg("GetCandidate failed")
		return model.Candidate{}, notFound(err)
	}
	return c, nil
}

func (s *pgStore) AssetsByIDs(ctx context.Context, ids []int) (map[int]model.Asset, error) {
	out := make(map[int]model.Asset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.Asset
	const q = `
	SELECT id, title, category, duration_seconds, engagement_score, encoded_at, created_at
	  FROM assets
	 WHERE id = ANY($1);`
	if err := s.db.SelectContext(ctx, &rows, q, pq.Array(ids)); err != nil {
		log.Error().Err(err).Int("count", len(ids)).Msg("AssetsByIDs failed")
		return nil, err
	}
	for _, a := range rows {
		out[a.ID] = a
	}
	return out, nil
}

func (s *pgStore) PlaceHold(ctx context.Context, assetID int, reason string, until *time.Time) (model.SchedulingHold, error) {
	var h model.SchedulingHold
	const q = `
	INSERT INTO scheduling_holds (asset_id, reason, until, created_at)
	VALUES ($1, $2, $3, now())
	RETURNING id, asset_id, reason, until, created_at;`
	if err := s.db.GetContext(ctx, &h, q, assetID, reason, until); err != nil {
		log.Error().Err(err).Int("asset_id", assetID).Msg("PlaceHold failed")
		return model.SchedulingHold{}, err
	}
	return h, nil
}

func (s *pgStore) ReleaseHold(ctx context.Context, holdID int, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduling_holds
		   SET until = $2
		 WHERE id = $1
		   AND (until IS NULL OR until > $2);`, holdID, at)
	if err != nil {
		log.Error().Err(err).Int("hold_id", holdID).Msg("ReleaseHold failed")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("hold %d: %w", holdID, ErrNotFound)
	}
	return nil
}

func (s *pgStore) ListDelayPolicies(ctx context.Context) ([]model.DelayPolicy, error) {
	var out []model.DelayPolicy
	const q = `
	SELECT category, base_delay_hours, additional_delay_per_airing
	  FROM delay_policies
	 ORDER BY category;`
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		log.Error().Err(err).Msg("ListDelayPolicies failed")
		return nil, err
	}
	return out, nil
}
