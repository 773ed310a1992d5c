package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/playout/internal/clock"
	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/policy"
	"github.com/Nixie-Tech-LLC/playout/internal/retry"
)

var t0 = time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	store    *db.MemoryStore
	policies *policy.Set
	metrics  *recordingMetrics
	notifier *recordingNotifier
}

func newFixture(t *testing.T, policies ...model.DelayPolicy) *fixture {
	t.Helper()
	set, err := policy.NewSet(policies, &model.DelayPolicy{BaseDelayHours: 24})
	require.NoError(t, err)
	return &fixture{
		store:    db.NewMemoryStore(),
		policies: set,
		metrics:  newRecordingMetrics(),
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) add(category model.Category, seconds int, mutate ...func(*model.Asset, *model.SchedulingMetadata)) int {
	a := model.Asset{Title: string(category), Category: category, DurationSeconds: seconds}
	m := model.SchedulingMetadata{AvailableForScheduling: true}
	for _, fn := range mutate {
		fn(&a, &m)
	}
	return f.store.AddAsset(a, m)
}

func (f *fixture) addN(n int, category model.Category, seconds int, mutate ...func(*model.Asset, *model.SchedulingMetadata)) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = f.add(category, seconds, mutate...)
	}
	return ids
}

func testConfig(pattern ...Slot) Config {
	return Config{
		Pattern:   pattern,
		MaxErrors: 10,
		Backoff:   retry.Backoff{Retries: 2, Initial: time.Millisecond, Max: 4 * time.Millisecond},
	}
}

func (f *fixture) builder(cfg Config, opts ...Option) *Builder {
	opts = append([]Option{
		WithMetrics(f.metrics),
		WithNotifier(f.notifier),
		WithLogger(zerolog.Nop()),
	}, opts...)
	return NewBuilder(f.store, f.policies, clock.NewFixed(t0), cfg, opts...)
}

func (f *fixture) relaxer() *Relaxer {
	backoff := retry.Backoff{Retries: 2, Initial: time.Millisecond}
	cat := NewCatalog(f.store, f.policies, 0, backoff)
	return NewRelaxer(cat, f.store, backoff, f.metrics, zerolog.Nop())
}

type recordingMetrics struct {
	mu         sync.Mutex
	builds     map[model.ScheduleStatus]int
	selections map[string]int
	resets     map[model.Category]int
	noContent  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		builds:     make(map[model.ScheduleStatus]int),
		selections: make(map[string]int),
		resets:     make(map[model.Category]int),
		noContent:  make(map[string]int),
	}
}

func (m *recordingMetrics) BuildFinished(status model.ScheduleStatus, _ time.Duration) {
	m.mu.Lock()
	m.builds[status]++
	m.mu.Unlock()
}

func (m *recordingMetrics) Selection(factor float64, _ bool) {
	m.mu.Lock()
	m.selections[FactorKey(factor)]++
	m.mu.Unlock()
}

func (m *recordingMetrics) CategoryReset(c model.Category) {
	m.mu.Lock()
	m.resets[c]++
	m.mu.Unlock()
}

func (m *recordingMetrics) NoContent(slot string) {
	m.mu.Lock()
	m.noContent[slot]++
	m.mu.Unlock()
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []*BuildResult
}

func (n *recordingNotifier) BuildFinished(_ context.Context, res *BuildResult) error {
	n.mu.Lock()
	n.results = append(n.results, res)
	n.mu.Unlock()
	return nil
}
