// Package rotation spreads a small pool of assets evenly over a run of days.
// Each day takes the members used least so far, breaking ties with an
// injected seedable generator so a run can be replayed exactly.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/retry"
)

var ErrInvalidArgument = errors.New("rotation: invalid argument")

type Store interface {
	GetPool(ctx context.Context, poolID int) (model.RotationPool, error)
	PoolMembers(ctx context.Context, poolID int) ([]model.PoolMember, error)
	SaveDayAssignments(ctx context.Context, poolID int, days []model.DayAssignment) error
}

type Metrics interface {
	Assigned(pool string, n int)
}

type nopMetrics struct{}

func (nopMetrics) Assigned(string, int) {}

type Assigner struct {
	store   Store
	metrics Metrics
	backoff retry.Backoff
	log     zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Assigner)

func WithMetrics(m Metrics) Option { return func(a *Assigner) { a.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(a *Assigner) { a.log = l } }

// WithBackoff sets how transient store failures are retried.
func WithBackoff(b retry.Backoff) Option { return func(a *Assigner) { a.backoff = b } }

// NewAssigner uses rng for every tie-break. Pass a freshly seeded generator
// to make assignments reproducible.
func NewAssigner(store Store, rng *rand.Rand, opts ...Option) *Assigner {
	a := &Assigner{store: store, rng: rng, metrics: nopMetrics{}, backoff: retry.Default(), log: log.Logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewSeeded returns a generator for NewAssigner from a single seed.
func NewSeeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Assign builds numDays consecutive day assignments starting at startDate and
// persists them, replacing any earlier assignment of the same days.
func (a *Assigner) Assign(ctx context.Context, poolID int, startDate time.Time, numDays, itemsPerDay int) ([]model.DayAssignment, error) {
	if numDays <= 0 || itemsPerDay <= 0 {
		return nil, fmt.Errorf("%w: numDays and itemsPerDay must be positive", ErrInvalidArgument)
	}

	var (
		pool    model.RotationPool
		members []model.PoolMember
	)
	err := a.backoff.Do(ctx, "get pool", func(ctx context.Context) error {
		var err error
		pool, err = a.store.GetPool(ctx, poolID)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = a.backoff.Do(ctx, "pool members", func(ctx context.Context) error {
		var err error
		members, err = a.store.PoolMembers(ctx, poolID)
		return err
	})
	if err != nil {
		return nil, err
	}

	days := a.plan(pool, members, startDate.UTC(), numDays, itemsPerDay)

	err = a.backoff.Do(ctx, "save assignments", func(ctx context.Context) error {
		return a.store.SaveDayAssignments(ctx, poolID, days)
	})
	if err != nil {
		return nil, fmt.Errorf("save assignments for pool %d: %w", poolID, err)
	}
	assigned := 0
	for _, d := range days {
		assigned += len(d.AssetIDs)
	}
	a.metrics.Assigned(pool.Name, assigned)
	a.log.Info().
		Int("pool_id", poolID).
		Str("pool", pool.Name).
		Time("start", startDate).
		Int("days", numDays).
		Int("per_day", itemsPerDay).
		Int("assigned", assigned).
		Msg("rotation pool assigned")
	return days, nil
}

type slot struct {
	id  int
	key uint64
}

func (a *Assigner) plan(pool model.RotationPool, members []model.PoolMember, start time.Time, numDays, perDay int) []model.DayAssignment {
	a.mu.Lock()
	defer a.mu.Unlock()

	usage := make(map[int]int, len(members))
	days := make([]model.DayAssignment, 0, numDays)

	for d := 0; d < numDays; d++ {
		dayStart := start.AddDate(0, 0, d)

		var eligible []slot
		for _, m := range members {
			if m.Candidate.Eligible(dayStart) {
				eligible = append(eligible, slot{id: m.AssetID, key: a.rng.Uint64()})
			}
		}
		if len(eligible) < perDay {
			a.log.Warn().
				Int("pool_id", pool.ID).
				Str("pool", pool.Name).
				Int("day_index", d).
				Int("eligible", len(eligible)).
				Int("per_day", perDay).
				Msg("rotation pool under capacity")
		}

		sort.Slice(eligible, func(i, j int) bool {
			ui, uj := usage[eligible[i].id], usage[eligible[j].id]
			if ui != uj {
				return ui < uj
			}
			return eligible[i].key < eligible[j].key
		})

		n := min(perDay, len(eligible))
		ids := make([]int, n)
		for i := 0; i < n; i++ {
			ids[i] = eligible[i].id
			usage[ids[i]]++
		}

		days = append(days, model.DayAssignment{
			PoolID:   pool.ID,
			DayIndex: d,
			Start:    dayStart,
			End:      dayStart.AddDate(0, 0, 1),
			AssetIDs: ids,
		})
	}
	return days
}
