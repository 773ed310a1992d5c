// Package scheduler fills a linear playout schedule from the content catalog.
//
// A build walks the target duration one slot at a time. Each slot asks the
// Relaxer for candidates of the slot's category, ranks them and appends the
// best one that is not already airing elsewhere. Pool slots instead take the
// member of the day's rotation assignment used least so far.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/clock"
	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/lock"
	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/policy"
	"github.com/Nixie-Tech-LLC/playout/internal/retry"
)

// Config tunes the fill loop. Zero fields take the DefaultConfig value.
type Config struct {
	Pattern          []Slot
	FeaturedInterval time.Duration
	FeaturedCategory model.Category
	MaxErrors        int
	Lookback         time.Duration
	CandidateLimit   int
	LockTTL          time.Duration
	Backoff          retry.Backoff
}

func DefaultConfig() Config {
	return Config{
		Pattern: []Slot{
			CategorySlot(model.CategoryShort),
			CategorySlot(model.CategoryMedium),
			CategorySlot(model.CategoryLong),
		},
		FeaturedInterval: 90 * time.Minute,
		FeaturedCategory: model.CategoryShort,
		MaxErrors:        10,
		Lookback:         6 * time.Hour,
		CandidateLimit:   db.DefaultCandidateLimit,
		LockTTL:          10 * time.Minute,
		Backoff:          retry.Default(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Pattern) == 0 {
		c.Pattern = d.Pattern
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = d.MaxErrors
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = d.CandidateLimit
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.Backoff == (retry.Backoff{}) {
		c.Backoff = d.Backoff
	}
	return c
}

type BuildRequest struct {
	Channel string
	StartAt time.Time
	Target  time.Duration
	// Pattern overrides the configured rotation pattern when set.
	Pattern []Slot
}

func (r BuildRequest) validate() error {
	switch {
	case r.Channel == "":
		return fmt.Errorf("%w: channel is required", ErrInvalidRequest)
	case r.StartAt.IsZero():
		return fmt.Errorf("%w: start is required", ErrInvalidRequest)
	case r.Target < time.Second:
		return fmt.Errorf("%w: target must be at least one second", ErrInvalidRequest)
	case len(r.Pattern) == 0:
		return fmt.Errorf("%w: empty rotation pattern", ErrInvalidRequest)
	}
	for _, s := range r.Pattern {
		if !s.IsPool() && s.Category == "" {
			return fmt.Errorf("%w: pattern slot without category", ErrInvalidRequest)
		}
	}
	return nil
}

// LockKey names the lock held while a range is being built.
func LockKey(channel string, start time.Time, target time.Duration) string {
	return fmt.Sprintf("playout:build:%s:%d:%d", channel, start.Unix(), int64(target/time.Second))
}

// FactorKey formats a delay factor for FactorCounts and metric labels.
func FactorKey(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FailureInfo describes why a build stopped.
type FailureInfo struct {
	Reason         string         `json:"reason"`
	Slot           string         `json:"slot,omitempty"`
	Category       model.Category `json:"category,omitempty"`
	PoolID         int            `json:"pool_id,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	CatalogSize    int            `json:"catalog_size"`
	ExclusionSize  int            `json:"exclusion_size"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
}

type Diagnostics struct {
	ElapsedSeconds  int            `json:"elapsed_seconds"`
	TargetSeconds   int            `json:"target_seconds"`
	ItemCount       int            `json:"item_count"`
	FactorCounts    map[string]int `json:"factor_counts"`
	Resets          int            `json:"resets"`
	PostResetItems  int            `json:"post_reset_items"`
	PoolItems       int            `json:"pool_items"`
	FeaturedItems   int            `json:"featured_items"`
	FeaturedSkipped int            `json:"featured_skipped"`
	Conflicts       int            `json:"conflicts"`
	ErrorCount      int            `json:"error_count"`
	Failure         *FailureInfo   `json:"failure,omitempty"`
}

// BuildResult is the outcome of one build. Items appended before a failure
// are kept in the store and reported here.
type BuildResult struct {
	ScheduleID  uuid.UUID             `json:"schedule_id"`
	Channel     string                `json:"channel"`
	StartAt     time.Time             `json:"start_at"`
	Status      model.ScheduleStatus  `json:"status"`
	Items       []model.ScheduledItem `json:"items"`
	Diagnostics Diagnostics           `json:"diagnostics"`
	// Err is the failure cause, nil on success.
	Err error `json:"-"`
}

type Builder struct {
	store    Store
	catalog  *Catalog
	relaxer  *Relaxer
	clock    clock.Clock
	locker   lock.Locker
	notifier Notifier
	metrics  Metrics
	cfg      Config
	log      zerolog.Logger
}

type Option func(*Builder)

func WithLocker(l lock.Locker) Option { return func(b *Builder) { b.locker = l } }

func WithNotifier(n Notifier) Option { return func(b *Builder) { b.notifier = n } }

func WithMetrics(m Metrics) Option { return func(b *Builder) { b.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(b *Builder) { b.log = l } }

func NewBuilder(store Store, policies policy.Provider, clk clock.Clock, cfg Config, opts ...Option) *Builder {
	b := &Builder{
		store:    store,
		clock:    clk,
		locker:   lock.NewLocal(),
		notifier: nopNotifier{},
		metrics:  nopMetrics{},
		cfg:      cfg.withDefaults(),
		log:      log.Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.catalog = NewCatalog(store, policies, b.cfg.CandidateLimit, b.cfg.Backoff)
	b.relaxer = NewRelaxer(b.catalog, store, b.cfg.Backoff, b.metrics, b.log)
	return b
}

func (b *Builder) Config() Config { return b.cfg }

// BuildSchedule fills [StartAt, StartAt+Target). The error return is reserved
// for invalid requests, lock conflicts and failing to create the schedule; all
// other outcomes are reported through the result.
func (b *Builder) BuildSchedule(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if len(req.Pattern) == 0 {
		req.Pattern = b.cfg.Pattern
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.StartAt = req.StartAt.UTC()

	key := LockKey(req.Channel, req.StartAt, req.Target)
	lease, err := b.locker.Acquire(ctx, key, b.cfg.LockTTL)
	if errors.Is(err, lock.ErrLocked) {
		return nil, fmt.Errorf("%w: %s", ErrBuildInProgress, key)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire build lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			b.log.Warn().Err(err).Str("key", key).Msg("failed to release build lock")
		}
	}()

	started := b.clock.Now()
	sc := &model.Schedule{
		Channel:       req.Channel,
		StartAt:       req.StartAt,
		TargetSeconds: int(req.Target / time.Second),
		Status:        model.ScheduleBuilding,
		CreatedAt:     started,
	}
	if err := b.cfg.Backoff.Do(ctx, "create schedule", func(ctx context.Context) error {
		return b.store.CreateSchedule(ctx, sc)
	}); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	r := b.newRun(sc, req)
	r.log.Info().
		Time("start", sc.StartAt).
		Int("target_seconds", sc.TargetSeconds).
		Int("pattern_len", len(r.pattern)).
		Msg("schedule build started")

	if err := r.seed(ctx); err != nil {
		r.fail(err, nil)
	} else {
		r.execute(ctx)
	}

	res := r.result()
	b.finish(ctx, r, res, started)
	return res, nil
}

func (b *Builder) finish(ctx context.Context, r *run, res *BuildResult, started time.Time) {
	ctx = context.WithoutCancel(ctx)
	var reason *string
	if res.Diagnostics.Failure != nil {
		reason = &res.Diagnostics.Failure.Reason
	}
	err := b.cfg.Backoff.Do(ctx, "finish schedule", func(ctx context.Context) error {
		return b.store.FinishSchedule(ctx, res.ScheduleID, res.Status, res.Diagnostics.ElapsedSeconds,
			res.Diagnostics.ItemCount, reason, b.clock.Now())
	})
	if err != nil {
		r.log.Error().Err(err).Msg("failed to record build outcome")
	}

	b.metrics.BuildFinished(res.Status, b.clock.Now().Sub(started))
	if err := b.notifier.BuildFinished(ctx, res); err != nil {
		r.log.Warn().Err(err).Msg("build notification failed")
	}

	ev := r.log.Info()
	if res.Status == model.ScheduleFailed {
		ev = r.log.Error().Err(res.Err)
	}
	ev.Str("status", string(res.Status)).
		Int("items", res.Diagnostics.ItemCount).
		Int("elapsed_seconds", res.Diagnostics.ElapsedSeconds).
		Int("resets", res.Diagnostics.Resets).
		Int("errors", res.Diagnostics.ErrorCount).
		Msg("schedule build finished")
}

type state int

const (
	stateSelectingCategory state = iota
	stateQueryingCandidates
	stateScoring
	stateAppending
	stateCheckingTarget
	stateCompleted
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateSelectingCategory:
		return "selecting_category"
	case stateQueryingCandidates:
		return "querying_candidates"
	case stateScoring:
		return "scoring"
	case stateAppending:
		return "appending"
	case stateCheckingTarget:
		return "checking_target"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// run is the mutable state of one build.
type run struct {
	b       *Builder
	sc      *model.Schedule
	pattern []Slot
	target  time.Duration
	log     zerolog.Logger

	state        state
	elapsed      time.Duration
	pos          int
	steps        int
	lastFeatured time.Duration
	exclude      model.AssetSet
	guard        int
	errorCount   int
	// failedAt maps a slot to the step of its first failure since that slot
	// last succeeded.
	failedAt map[string]int
	poolUses map[int]int

	// current slot
	slot     Slot
	featured bool
	asOf     time.Time
	res      Resolution
	ranked   []model.Candidate

	items   []model.ScheduledItem
	diag    Diagnostics
	err     error
	failure *FailureInfo
}

func (b *Builder) newRun(sc *model.Schedule, req BuildRequest) *run {
	return &run{
		b:       b,
		sc:      sc,
		pattern: req.Pattern,
		target:  req.Target,
		log: b.log.With().
			Str("schedule_id", sc.ID.String()).
			Str("channel", sc.Channel).
			Logger(),
		exclude:  model.NewAssetSet(),
		failedAt: make(map[string]int),
		poolUses: make(map[int]int),
		diag:     Diagnostics{FactorCounts: make(map[string]int)},
	}
}

// seed excludes what the channel aired just before the build starts.
func (r *run) seed(ctx context.Context) error {
	lookback := r.b.cfg.Lookback
	if lookback <= 0 {
		return nil
	}
	var ids []int
	err := r.b.cfg.Backoff.Do(ctx, "recently aired", func(ctx context.Context) error {
		var err error
		ids, err = r.b.store.RecentlyAiredIDs(ctx, r.sc.Channel, r.sc.StartAt.Add(-lookback), r.sc.StartAt)
		return err
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		r.exclude.Add(id)
	}
	r.log.Debug().Int("excluded", len(ids)).Dur("lookback", lookback).Msg("exclusion set seeded")
	return nil
}

func (r *run) execute(ctx context.Context) {
	for r.state != stateCompleted && r.state != stateFailed {
		if err := ctx.Err(); err != nil {
			r.fail(err, nil)
			return
		}
		switch r.state {
		case stateSelectingCategory:
			r.selectSlot()
		case stateQueryingCandidates:
			r.query(ctx)
		case stateScoring:
			r.score()
		case stateAppending:
			r.appendBest(ctx)
		case stateCheckingTarget:
			r.checkTarget()
		}
	}
}

func (r *run) selectSlot() {
	r.asOf = r.sc.StartAt.Add(r.elapsed)
	interval := r.b.cfg.FeaturedInterval
	if interval > 0 && r.b.cfg.FeaturedCategory != "" && r.elapsed-r.lastFeatured >= interval {
		r.featured = true
		r.slot = CategorySlot(r.b.cfg.FeaturedCategory)
	} else {
		r.featured = false
		r.slot = r.pattern[r.pos%len(r.pattern)]
	}
	r.state = stateQueryingCandidates
}

func (r *run) pinned() model.AssetSet {
	if r.guard == 0 {
		return model.NewAssetSet()
	}
	return model.NewAssetSet(r.guard)
}

func (r *run) query(ctx context.Context) {
	var (
		res Resolution
		err error
	)
	if r.slot.IsPool() {
		res, err = r.resolvePool(ctx)
	} else {
		res, err = r.b.relaxer.Resolve(ctx, ResolveRequest{
			Category:     r.slot.Category,
			AsOf:         r.asOf,
			Exclude:      r.exclude,
			Pinned:       r.pinned(),
			FeaturedOnly: r.featured,
		})
	}
	for _, id := range res.Released {
		r.exclude.Remove(id)
	}
	if res.PostReset {
		r.diag.Resets++
	}

	var nc *NoContentError
	switch {
	case errors.As(err, &nc):
		r.noContent(nc)
	case err != nil:
		r.fail(err, nil)
	default:
		r.res = res
		r.state = stateScoring
	}
}

// resolvePool orders the day's assigned members by how often this build has
// used them, then by their position in the assignment.
func (r *run) resolvePool(ctx context.Context) (Resolution, error) {
	nc := &NoContentError{Slot: r.slot.String(), PoolID: r.slot.PoolID, ExclusionSize: r.pinned().Len()}

	var day model.DayAssignment
	err := r.b.cfg.Backoff.Do(ctx, "day assignment", func(ctx context.Context) error {
		var err error
		day, err = r.b.store.DayAssignmentAt(ctx, r.slot.PoolID, r.asOf)
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		nc.Reason = ReasonNoAssignment
		return Resolution{}, nc
	}
	if err != nil {
		return Resolution{}, err
	}
	nc.CatalogSize = len(day.AssetIDs)

	cands, err := r.b.catalog.Query(ctx, Query{
		AsOf:    r.asOf,
		Only:    model.NewAssetSet(day.AssetIDs...),
		Exclude: r.pinned(),
	})
	if err != nil {
		return Resolution{}, err
	}
	if len(cands) == 0 {
		nc.Reason = ReasonAssignedIneligible
		return Resolution{Queries: 1}, nc
	}

	order := make(map[int]int, len(day.AssetIDs))
	for i, id := range day.AssetIDs {
		order[id] = i
	}
	sort.SliceStable(cands, func(i, j int) bool {
		ui, uj := r.poolUses[cands[i].ID], r.poolUses[cands[j].ID]
		if ui != uj {
			return ui < uj
		}
		return order[cands[i].ID] < order[cands[j].ID]
	})
	return Resolution{Candidates: cands, Queries: 1}, nil
}

func (r *run) score() {
	r.ranked = r.ranked[:0]
	if r.slot.IsPool() {
		r.ranked = append(r.ranked, r.res.Candidates...)
	} else {
		for _, s := range Rank(r.res.Candidates, r.asOf) {
			r.ranked = append(r.ranked, s.Candidate)
		}
	}
	r.state = stateAppending
}

func (r *run) appendBest(ctx context.Context) {
	for _, c := range r.ranked {
		item := model.ScheduledItem{
			ScheduleID:         r.sc.ID,
			Sequence:           len(r.items) + 1,
			AssetID:            c.ID,
			Category:           c.Category,
			StartOffsetSeconds: int(r.elapsed / time.Second),
			DurationSeconds:    c.DurationSeconds,
			DelayFactor:        r.res.Factor,
			PostReset:          r.res.PostReset,
			Featured:           r.featured,
		}
		if r.slot.IsPool() {
			poolID := r.slot.PoolID
			item.PoolID = &poolID
		}

		err := r.b.cfg.Backoff.Do(ctx, "append item", func(ctx context.Context) error {
			return r.b.store.AppendItem(ctx, *r.sc, item)
		})
		if errors.Is(err, db.ErrAssetConflict) {
			r.diag.Conflicts++
			r.log.Debug().Int("asset_id", c.ID).Time("air_time", r.asOf).Msg("asset airs elsewhere in this window, trying next")
			continue
		}
		if err != nil {
			r.fail(err, nil)
			return
		}
		r.accept(item)
		r.state = stateCheckingTarget
		return
	}

	r.noContent(&NoContentError{
		Slot:          r.slot.String(),
		Category:      r.slot.Category,
		PoolID:        r.slot.PoolID,
		CatalogSize:   len(r.ranked),
		ExclusionSize: r.exclude.Len(),
		PostReset:     r.res.PostReset,
	})
}

func (r *run) accept(item model.ScheduledItem) {
	r.items = append(r.items, item)
	r.elapsed += time.Duration(item.DurationSeconds) * time.Second
	r.exclude.Add(item.AssetID)
	r.guard = item.AssetID

	if item.PostReset {
		r.diag.PostResetItems++
	}
	if item.PoolID != nil {
		r.poolUses[item.AssetID]++
		r.diag.PoolItems++
	} else {
		r.diag.FactorCounts[FactorKey(item.DelayFactor)]++
		r.b.metrics.Selection(item.DelayFactor, item.PostReset)
	}

	if r.featured {
		r.diag.FeaturedItems++
		r.lastFeatured = time.Duration(item.StartOffsetSeconds) * time.Second
		return
	}
	delete(r.failedAt, r.slot.String())
	r.advance()
}

func (r *run) advance() {
	r.pos++
	r.steps++
}

// noContent handles an unfillable slot. Featured slots are skipped; regular
// slots count toward the error limit and the rotation-cycle check.
func (r *run) noContent(nc *NoContentError) {
	nc.Elapsed = r.elapsed
	r.b.metrics.NoContent(nc.Slot)

	if r.featured {
		r.diag.FeaturedSkipped++
		r.lastFeatured = r.elapsed
		r.log.Warn().Err(nc).Msg("no featured content, slot skipped")
		r.state = stateSelectingCategory
		return
	}

	r.errorCount++
	first, ok := r.failedAt[nc.Slot]
	if ok && r.steps-first >= len(r.pattern) {
		r.fail(fmt.Errorf("%w: %s: %w", ErrRotationCycleFailure, nc.Slot, nc), nc)
		return
	}
	if !ok {
		r.failedAt[nc.Slot] = r.steps
	}
	if r.errorCount > r.b.cfg.MaxErrors {
		r.fail(fmt.Errorf("%w (%d): %w", ErrTooManyErrors, r.errorCount, nc), nc)
		return
	}

	r.log.Warn().Err(nc).Int("error_count", r.errorCount).Msg("slot skipped")
	r.advance()
	r.state = stateSelectingCategory
}

func (r *run) checkTarget() {
	if r.elapsed >= r.target {
		r.state = stateCompleted
		return
	}
	r.state = stateSelectingCategory
}

func (r *run) fail(err error, nc *NoContentError) {
	r.err = err
	r.failure = &FailureInfo{
		Reason:         err.Error(),
		Slot:           r.slot.String(),
		Category:       r.slot.Category,
		ExclusionSize:  r.exclude.Len(),
		ElapsedSeconds: int(r.elapsed / time.Second),
	}
	if nc != nil {
		r.failure.Slot = nc.Slot
		r.failure.PoolID = nc.PoolID
		r.failure.Detail = nc.Reason
		r.failure.CatalogSize = nc.CatalogSize
		r.failure.ExclusionSize = nc.ExclusionSize
	}
	r.state = stateFailed
}

func (r *run) result() *BuildResult {
	status := model.ScheduleCompleted
	if r.state == stateFailed {
		status = model.ScheduleFailed
	}
	d := r.diag
	d.ElapsedSeconds = int(r.elapsed / time.Second)
	d.TargetSeconds = r.sc.TargetSeconds
	d.ItemCount = len(r.items)
	d.ErrorCount = r.errorCount
	d.Failure = r.failure
	return &BuildResult{
		ScheduleID:  r.sc.ID,
		Channel:     r.sc.Channel,
		StartAt:     r.sc.StartAt,
		Status:      status,
		Items:       r.items,
		Diagnostics: d,
		Err:         r.err,
	}
}
