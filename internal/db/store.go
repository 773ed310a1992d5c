// exposes a Store interface that is passed to the engine and the API layer
package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

type Store interface {
	// catalog
	QueryCandidates(ctx context.Context, f CandidateFilter) ([]model.Candidate, error)
	CategoryAssetIDs(ctx context.Context, category model.Category) ([]int, error)
	ResetCategory(ctx context.Context, category model.Category, assetIDs []int) (int, error)
	RecentlyAiredIDs(ctx context.Context, channel string, from, to time.Time) ([]int, error)
	GetCandidate(ctx context.Context, assetID int) (model.Candidate, error)
	AssetsByIDs(ctx context.Context, ids []int) (map[int]model.Asset, error)

	// holds
	PlaceHold(ctx context.Context, assetID int, reason string, until *time.Time) (model.SchedulingHold, error)
	ReleaseHold(ctx context.Context, holdID int, at time.Time) error

	// schedules
	CreateSchedule(ctx context.Context, s *model.Schedule) error
	AppendItem(ctx context.Context, s model.Schedule, item model.ScheduledItem) error
	FinishSchedule(ctx context.Context, id uuid.UUID, status model.ScheduleStatus, totalSeconds, itemCount int, reason *string, at time.Time) error
	GetSchedule(ctx context.Context, id uuid.UUID) (model.Schedule, error)
	UpdateItemOffsets(ctx context.Context, id uuid.UUID, items []model.ScheduledItem) error

	// rotation pools
	GetPool(ctx context.Context, poolID int) (model.RotationPool, error)
	PoolMembers(ctx context.Context, poolID int) ([]model.PoolMember, error)
	SaveDayAssignments(ctx context.Context, poolID int, days []model.DayAssignment) error
	DayAssignmentAt(ctx context.Context, poolID int, at time.Time) (model.DayAssignment, error)
	ListDayAssignments(ctx context.Context, poolID int, from, to time.Time) ([]model.DayAssignment, error)

	// delay policies
	ListDelayPolicies(ctx context.Context) ([]model.DelayPolicy, error)
}

type pgStore struct {
	db *sqlx.DB
}

// compile-time checks
var (
	_ Store = (*pgStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

func NewStore(db *sqlx.DB) Store {
	return &pgStore{db: db}
}
