package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/retry"
)

// Ladder is the fixed sequence of delay factors tried before a reset.
var Ladder = [...]float64{1.0, 0.75, 0.5, 0.25, 0.0}

// MaxQueriesPerResolve bounds catalog queries for one slot: the ladder plus
// the single post-reset retry.
const MaxQueriesPerResolve = len(Ladder) + 1

// ResolveRequest asks for candidates for one slot. Pinned ids stay excluded
// even when the category is reset.
type ResolveRequest struct {
	Category     model.Category
	AsOf         time.Time
	Exclude      model.AssetSet
	Pinned       model.AssetSet
	FeaturedOnly bool
}

// Resolution is the outcome of one successful resolve.
type Resolution struct {
	Candidates []model.Candidate
	Factor     float64
	PostReset  bool
	// Released lists ids the caller must drop from its exclusion set.
	Released []int
	Queries  int
}

type Relaxer struct {
	catalog *Catalog
	store   CatalogStore
	backoff retry.Backoff
	metrics Metrics
	log     zerolog.Logger
}

func NewRelaxer(catalog *Catalog, store CatalogStore, backoff retry.Backoff, metrics Metrics, logger zerolog.Logger) *Relaxer {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Relaxer{catalog: catalog, store: store, backoff: backoff, metrics: metrics, log: logger}
}

func (r *Relaxer) step(ctx context.Context, req ResolveRequest, exclude model.AssetSet, factor float64) ([]model.Candidate, error) {
	cands, err := r.catalog.Query(ctx, Query{
		Category:     req.Category,
		AsOf:         req.AsOf,
		Exclude:      exclude,
		DelayFactor:  factor,
		FeaturedOnly: req.FeaturedOnly,
	})
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, errNoCandidates
	}
	return cands, nil
}

// Resolve walks the ladder, then resets the category once if the build's own
// exclusions are what starve it. It issues at most MaxQueriesPerResolve
// catalog queries.
func (r *Relaxer) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	res := Resolution{}
	for _, factor := range Ladder {
		cands, err := r.step(ctx, req, req.Exclude, factor)
		res.Queries++
		if err == nil {
			res.Candidates, res.Factor = cands, factor
			return res, nil
		}
		if !errors.Is(err, errNoCandidates) {
			return res, err
		}
	}

	members, err := r.categoryMembers(ctx, req.Category)
	if err != nil {
		return res, err
	}
	noContent := &NoContentError{
		Slot:          string(req.Category),
		Category:      req.Category,
		CatalogSize:   len(members),
		ExclusionSize: req.Exclude.Len(),
	}

	released, err := r.exhausted(req, members)
	if errors.Is(err, ErrCategoryExhausted) {
		return r.reset(ctx, req, released, res, noContent)
	}
	return res, noContent
}

func (r *Relaxer) categoryMembers(ctx context.Context, category model.Category) ([]int, error) {
	if category == "" {
		return nil, nil
	}
	var ids []int
	err := r.backoff.Do(ctx, "category members", func(ctx context.Context) error {
		var err error
		ids, err = r.store.CategoryAssetIDs(ctx, category)
		return err
	})
	return ids, err
}

// exhausted returns the excluded members of the category that a reset may
// release, with ErrCategoryExhausted when there are any.
func (r *Relaxer) exhausted(req ResolveRequest, members []int) ([]int, error) {
	if req.FeaturedOnly || req.Exclude.Len() == 0 {
		return nil, nil
	}
	var ids []int
	for _, id := range members {
		if req.Exclude.Has(id) && !req.Pinned.Has(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, fmt.Errorf("%w: %s (%d excluded)", ErrCategoryExhausted, req.Category, len(ids))
}

func (r *Relaxer) reset(ctx context.Context, req ResolveRequest, released []int, res Resolution, noContent *NoContentError) (Resolution, error) {
	var cleared int
	err := r.backoff.Do(ctx, "reset category", func(ctx context.Context) error {
		var err error
		cleared, err = r.store.ResetCategory(ctx, req.Category, released)
		return err
	})
	if err != nil {
		return res, err
	}
	r.metrics.CategoryReset(req.Category)
	r.log.Info().
		Str("category", string(req.Category)).
		Int("released", len(released)).
		Int("cleared", cleared).
		Msg("category exhausted, reset applied")

	exclude := req.Exclude.Clone()
	for _, id := range released {
		exclude.Remove(id)
	}

	cands, err := r.step(ctx, req, exclude, 0)
	res.Queries++
	res.Released = released
	res.PostReset = true
	if errors.Is(err, errNoCandidates) {
		noContent.PostReset = true
		noContent.ExclusionSize = exclude.Len()
		return res, noContent
	}
	if err != nil {
		return res, err
	}
	res.Candidates, res.Factor = cands, 0
	return res, nil
}
