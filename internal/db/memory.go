package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

// MemoryStore is an in-process Store with the same filtering, locking and
// conflict semantics as the Postgres store. Engine and API tests run on it.
type MemoryStore struct {
	mu sync.Mutex

	assets      map[int]model.Asset
	meta        map[int]model.SchedulingMetadata
	holds       map[int]model.SchedulingHold
	schedules   map[uuid.UUID]*model.Schedule
	pools       map[int]model.RotationPool
	records     map[int]map[int]*model.RotationRecord
	assignments map[int]map[time.Time]model.DayAssignment
	policies    []model.DelayPolicy

	nextAssetID int
	nextHoldID  int
	nextPoolID  int

	calls    map[string]int
	failures map[string][]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:      make(map[int]model.Asset),
		meta:        make(map[int]model.SchedulingMetadata),
		holds:       make(map[int]model.SchedulingHold),
		schedules:   make(map[uuid.UUID]*model.Schedule),
		pools:       make(map[int]model.RotationPool),
		records:     make(map[int]map[int]*model.RotationRecord),
		assignments: make(map[int]map[time.Time]model.DayAssignment),
		calls:       make(map[string]int),
		failures:    make(map[string][]error),
	}
}

// AddAsset stores an asset and its metadata, assigning an id when a.ID is zero.
func (s *MemoryStore) AddAsset(a model.Asset, m model.SchedulingMetadata) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == 0 {
		s.nextAssetID++
		a.ID = s.nextAssetID
	} else if a.ID > s.nextAssetID {
		s.nextAssetID = a.ID
	}
	m.AssetID = a.ID
	s.assets[a.ID] = a
	s.meta[a.ID] = m
	return a.ID
}

// AddPool creates a rotation pool with the given members.
func (s *MemoryStore) AddPool(name string, assetIDs ...int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPoolID++
	id := s.nextPoolID
	s.pools[id] = model.RotationPool{ID: id, Name: name}
	recs := make(map[int]*model.RotationRecord, len(assetIDs))
	for _, aid := range assetIDs {
		recs[aid] = &model.RotationRecord{PoolID: id, AssetID: aid}
	}
	s.records[id] = recs
	return id
}

func (s *MemoryStore) SetDelayPolicies(policies ...model.DelayPolicy) {
	s.mu.Lock()
	s.policies = append([]model.DelayPolicy(nil), policies...)
	s.mu.Unlock()
}

// Metadata returns a copy of an asset's scheduling metadata.
func (s *MemoryStore) Metadata(assetID int) (model.SchedulingMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meta[assetID]
	return m, ok
}

// UpdateMetadata applies fn to an asset's metadata.
func (s *MemoryStore) UpdateMetadata(assetID int, fn func(m *model.SchedulingMetadata)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta[assetID]
	fn(&m)
	s.meta[assetID] = m
}

// SetDuration changes an asset's nominal duration.
func (s *MemoryStore) SetDuration(assetID, seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.assets[assetID]
	a.DurationSeconds = seconds
	s.assets[assetID] = a
}

// RotationRecord returns a copy of a pool member's record.
func (s *MemoryStore) RotationRecord(poolID, assetID int) (model.RotationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[poolID][assetID]
	if !ok {
		return model.RotationRecord{}, false
	}
	return *r, true
}

// Fail queues errors returned by the next calls to method, one per call.
func (s *MemoryStore) Fail(method string, errs ...error) {
	s.mu.Lock()
	s.failures[method] = append(s.failures[method], errs...)
	s.mu.Unlock()
}

// Calls reports how many times method was invoked.
func (s *MemoryStore) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// enter records the call and pops a queued failure. Caller holds mu.
func (s *MemoryStore) enter(method string) error {
	s.calls[method]++
	if q := s.failures[method]; len(q) > 0 {
		s.failures[method] = q[1:]
		return q[0]
	}
	return nil
}

func (s *MemoryStore) candidate(id int) model.Candidate {
	return model.Candidate{Asset: s.assets[id], SchedulingMetadata: s.meta[id]}
}

func (s *MemoryStore) held(assetID int, at time.Time) bool {
	for _, h := range s.holds {
		if h.AssetID == assetID && h.Open(at) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) QueryCandidates(_ context.Context, f CandidateFilter) ([]model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("QueryCandidates"); err != nil {
		return nil, err
	}

	var out []model.Candidate
	for id := range s.assets {
		c := s.candidate(id)
		if !f.Match(c) || s.held(id, f.AsOf) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return catalogLess(out[i], out[j]) })
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

// catalogLess mirrors the ORDER BY of the Postgres candidate query.
func catalogLess(a, b model.Candidate) bool {
	switch {
	case a.LastScheduledAt == nil && b.LastScheduledAt != nil:
		return true
	case a.LastScheduledAt != nil && b.LastScheduledAt == nil:
		return false
	case a.LastScheduledAt != nil && !a.LastScheduledAt.Equal(*b.LastScheduledAt):
		return a.LastScheduledAt.Before(*b.LastScheduledAt)
	}
	if a.TotalAirings != b.TotalAirings {
		return a.TotalAirings < b.TotalAirings
	}
	switch {
	case a.EncodedAt != nil && b.EncodedAt == nil:
		return true
	case a.EncodedAt == nil && b.EncodedAt != nil:
		return false
	case a.EncodedAt != nil && !a.EncodedAt.Equal(*b.EncodedAt):
		return a.EncodedAt.After(*b.EncodedAt)
	}
	return a.ID < b.ID
}

func (s *MemoryStore) CategoryAssetIDs(_ context.Context, category model.Category) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CategoryAssetIDs"); err != nil {
		return nil, err
	}

	var ids []int
	for id, a := range s.assets {
		if a.Category == category {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *MemoryStore) ResetCategory(_ context.Context, category model.Category, assetIDs []int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ResetCategory"); err != nil {
		return 0, err
	}

	n := 0
	for _, id := range assetIDs {
		a, ok := s.assets[id]
		if !ok || a.Category != category {
			continue
		}
		m := s.meta[id]
		if m.LastScheduledAt == nil {
			continue
		}
		m.LastScheduledAt = nil
		s.meta[id] = m
		n++
	}
	return n, nil
}

func (s *MemoryStore) RecentlyAiredIDs(_ context.Context, channel string, from, to time.Time) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RecentlyAiredIDs"); err != nil {
		return nil, err
	}

	seen := model.NewAssetSet()
	for _, sc := range s.schedules {
		if sc.Channel != channel || sc.Status == model.ScheduleFailed {
			continue
		}
		for _, it := range sc.Items {
			at := it.AirTime(sc.StartAt)
			if !at.Before(from) && at.Before(to) {
				seen.Add(it.AssetID)
			}
		}
	}
	return seen.IDs(), nil
}

func (s *MemoryStore) GetCandidate(_ context.Context, assetID int) (model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetCandidate"); err != nil {
		return model.Candidate{}, err
	}
	if _, ok := s.assets[assetID]; !ok {
		return model.Candidate{}, ErrNotFound
	}
	return s.candidate(assetID), nil
}

func (s *MemoryStore) AssetsByIDs(_ context.Context, ids []int) (map[int]model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("AssetsByIDs"); err != nil {
		return nil, err
	}
	out := make(map[int]model.Asset, len(ids))
	for _, id := range ids {
		if a, ok := s.assets[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *MemoryStore) PlaceHold(_ context.Context, assetID int, reason string, until *time.Time) (model.SchedulingHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("PlaceHold"); err != nil {
		return model.SchedulingHold{}, err
	}
	if _, ok := s.assets[assetID]; !ok {
		return model.SchedulingHold{}, fmt.Errorf("asset %d: %w", assetID, ErrNotFound)
	}
	s.nextHoldID++
	h := model.SchedulingHold{ID: s.nextHoldID, AssetID: assetID, Reason: reason, Until: until}
	s.holds[h.ID] = h
	return h, nil
}

func (s *MemoryStore) ReleaseHold(_ context.Context, holdID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ReleaseHold"); err != nil {
		return err
	}
	h, ok := s.holds[holdID]
	if !ok || !h.Open(at) {
		return fmt.Errorf("hold %d: %w", holdID, ErrNotFound)
	}
	h.Until = &at
	s.holds[holdID] = h
	return nil
}

func (s *MemoryStore) CreateSchedule(_ context.Context, sc *model.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateSchedule"); err != nil {
		return err
	}
	if sc.ID == uuid.Nil {
		sc.ID = uuid.New()
	}
	stored := *sc
	stored.Items = nil
	s.schedules[sc.ID] = &stored
	return nil
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func (s *MemoryStore) AppendItem(_ context.Context, sc model.Schedule, item model.ScheduledItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("AppendItem"); err != nil {
		return err
	}

	stored, ok := s.schedules[sc.ID]
	if !ok {
		return fmt.Errorf("schedule %s: %w", sc.ID, ErrNotFound)
	}
	m, ok := s.meta[item.AssetID]
	if !ok {
		return fmt.Errorf("asset %d: %w", item.AssetID, ErrNotFound)
	}

	airStart := item.AirTime(sc.StartAt)
	airEnd := airStart.Add(time.Duration(item.DurationSeconds) * time.Second)
	for id, other := range s.schedules {
		if id == sc.ID || other.Status == model.ScheduleFailed {
			continue
		}
		for _, it := range other.Items {
			if it.AssetID != item.AssetID {
				continue
			}
			start := it.AirTime(other.StartAt)
			end := start.Add(time.Duration(it.DurationSeconds) * time.Second)
			if overlaps(airStart, airEnd, start, end) {
				return ErrAssetConflict
			}
		}
	}

	item.ScheduleID = sc.ID
	stored.Items = append(stored.Items, item)
	stored.ItemCount++
	if end := item.EndOffsetSeconds(); end > stored.TotalSeconds {
		stored.TotalSeconds = end
	}

	m.TotalAirings++
	if m.LastScheduledAt == nil || m.LastScheduledAt.Before(airStart) {
		at := airStart
		m.LastScheduledAt = &at
	}
	s.meta[item.AssetID] = m

	if item.PoolID != nil {
		if rec, ok := s.records[*item.PoolID][item.AssetID]; ok {
			rec.ScheduledCount++
			if rec.LastScheduledAt == nil || rec.LastScheduledAt.Before(airStart) {
				at := airStart
				rec.LastScheduledAt = &at
			}
		}
	}
	return nil
}

func (s *MemoryStore) FinishSchedule(
	_ context.Context,
	id uuid.UUID,
	status model.ScheduleStatus,
	totalSeconds, itemCount int,
	reason *string,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FinishSchedule"); err != nil {
		return err
	}
	sc, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	sc.Status = status
	sc.TotalSeconds = totalSeconds
	sc.ItemCount = itemCount
	sc.FailureReason = reason
	sc.CompletedAt = &at
	return nil
}

func (s *MemoryStore) GetSchedule(_ context.Context, id uuid.UUID) (model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetSchedule"); err != nil {
		return model.Schedule{}, err
	}
	sc, ok := s.schedules[id]
	if !ok {
		return model.Schedule{}, ErrNotFound
	}
	out := *sc
	out.Items = append([]model.ScheduledItem(nil), sc.Items...)
	return out, nil
}

func (s *MemoryStore) UpdateItemOffsets(_ context.Context, id uuid.UUID, items []model.ScheduledItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateItemOffsets"); err != nil {
		return err
	}
	sc, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	bySeq := make(map[int]model.ScheduledItem, len(items))
	for _, it := range items {
		bySeq[it.Sequence] = it
	}
	total := 0
	for i := range sc.Items {
		if upd, ok := bySeq[sc.Items[i].Sequence]; ok {
			sc.Items[i].StartOffsetSeconds = upd.StartOffsetSeconds
			sc.Items[i].DurationSeconds = upd.DurationSeconds
		}
		if end := sc.Items[i].EndOffsetSeconds(); end > total {
			total = end
		}
	}
	sc.TotalSeconds = total
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, poolID int) (model.RotationPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetPool"); err != nil {
		return model.RotationPool{}, err
	}
	p, ok := s.pools[poolID]
	if !ok {
		return model.RotationPool{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) PoolMembers(_ context.Context, poolID int) ([]model.PoolMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("PoolMembers"); err != nil {
		return nil, err
	}
	out := make([]model.PoolMember, 0, len(s.records[poolID]))
	for aid, rec := range s.records[poolID] {
		out = append(out, model.PoolMember{RotationRecord: *rec, Candidate: s.candidate(aid)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (s *MemoryStore) SaveDayAssignments(_ context.Context, poolID int, days []model.DayAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SaveDayAssignments"); err != nil {
		return err
	}
	byDay, ok := s.assignments[poolID]
	if !ok {
		byDay = make(map[time.Time]model.DayAssignment)
		s.assignments[poolID] = byDay
	}
	for _, d := range days {
		d.AssetIDs = append([]int(nil), d.AssetIDs...)
		byDay[d.Start.UTC()] = d
	}
	return nil
}

func (s *MemoryStore) DayAssignmentAt(_ context.Context, poolID int, at time.Time) (model.DayAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DayAssignmentAt"); err != nil {
		return model.DayAssignment{}, err
	}
	var (
		best  model.DayAssignment
		found bool
	)
	for _, d := range s.assignments[poolID] {
		if d.Contains(at) && (!found || d.Start.After(best.Start)) {
			best, found = d, true
		}
	}
	if !found {
		return model.DayAssignment{}, ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) ListDayAssignments(_ context.Context, poolID int, from, to time.Time) ([]model.DayAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListDayAssignments"); err != nil {
		return nil, err
	}
	var out []model.DayAssignment
	for _, d := range s.assignments[poolID] {
		if !d.Start.Before(from) && d.Start.Before(to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *MemoryStore) ListDelayPolicies(_ context.Context) ([]model.DelayPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListDelayPolicies"); err != nil {
		return nil, err
	}
	return append([]model.DelayPolicy(nil), s.policies...), nil
}
