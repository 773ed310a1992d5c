package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/policy"
	"github.com/Nixie-Tech-LLC/playout/internal/retry"
)

// CatalogStore is the read side of the content catalog plus the reset write.
type CatalogStore interface {
	QueryCandidates(ctx context.Context, f db.CandidateFilter) ([]model.Candidate, error)
	CategoryAssetIDs(ctx context.Context, category model.Category) ([]int, error)
	ResetCategory(ctx context.Context, category model.Category, assetIDs []int) (int, error)
	RecentlyAiredIDs(ctx context.Context, channel string, from, to time.Time) ([]int, error)
}

// SchedulePersistence stores schedules and their items.
type SchedulePersistence interface {
	CreateSchedule(ctx context.Context, s *model.Schedule) error
	AppendItem(ctx context.Context, s model.Schedule, item model.ScheduledItem) error
	FinishSchedule(ctx context.Context, id uuid.UUID, status model.ScheduleStatus, totalSeconds, itemCount int, reason *string, at time.Time) error
	GetSchedule(ctx context.Context, id uuid.UUID) (model.Schedule, error)
	UpdateItemOffsets(ctx context.Context, id uuid.UUID, items []model.ScheduledItem) error
	AssetsByIDs(ctx context.Context, ids []int) (map[int]model.Asset, error)
	DayAssignmentAt(ctx context.Context, poolID int, at time.Time) (model.DayAssignment, error)
}

// Store is everything a build touches. db.Store satisfies it.
type Store interface {
	CatalogStore
	SchedulePersistence
}

// Query is one catalog lookup.
type Query struct {
	Category     model.Category
	AsOf         time.Time
	Exclude      model.AssetSet
	Only         model.AssetSet
	DelayFactor  float64
	FeaturedOnly bool
}

// Catalog answers candidate queries, looking the delay policy up on every
// call so policy reloads apply to builds already running.
type Catalog struct {
	store    CatalogStore
	policies policy.Provider
	limit    int
	backoff  retry.Backoff
}

func NewCatalog(store CatalogStore, policies policy.Provider, limit int, backoff retry.Backoff) *Catalog {
	return &Catalog{store: store, policies: policies, limit: limit, backoff: backoff}
}

func (c *Catalog) Query(ctx context.Context, q Query) ([]model.Candidate, error) {
	f := db.CandidateFilter{
		Category:     q.Category,
		AsOf:         q.AsOf,
		Exclude:      q.Exclude,
		Only:         q.Only,
		DelayFactor:  q.DelayFactor,
		FeaturedOnly: q.FeaturedOnly,
		Limit:        c.limit,
	}
	if q.DelayFactor > 0 {
		p, err := c.policies.DelayPolicy(ctx, q.Category)
		if err != nil {
			return nil, err
		}
		f.Policy = p
	}

	var out []model.Candidate
	err := c.backoff.Do(ctx, "query candidates", func(ctx context.Context) error {
		var err error
		out, err = c.store.QueryCandidates(ctx, f)
		return err
	})
	return out, err
}
