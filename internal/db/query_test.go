package db

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

func TestSelectBuilder_NumbersPlaceholdersInOrder(t *testing.T) {
	q, args := selectFrom("assets a", "a.id").
		Join("JOIN scheduling_metadata m ON m.asset_id = a.id").
		Where("a.category = ?", "short").
		Where("m.available_for_scheduling").
		Where("m.go_live_at IS NULL OR m.go_live_at <= ?", "t1").
		OrderBy("a.id ASC").
		Limit(10).
		Build()

	assert.Equal(t,
		"SELECT a.id FROM assets a JOIN scheduling_metadata m ON m.asset_id = a.id"+
			" WHERE (a.category = $1) AND (m.available_for_scheduling)"+
			" AND (m.go_live_at IS NULL OR m.go_live_at <= $2) ORDER BY a.id ASC LIMIT $3",
		q)
	assert.Equal(t, []any{"short", "t1", 10}, args)
}

func TestSelectBuilder_BuildTwiceIsStable(t *testing.T) {
	b := selectFrom("assets", "id").Where("id = ?", 7).Limit(1)
	q1, a1 := b.Build()
	q2, a2 := b.Build()
	assert.Equal(t, q1, q2)
	assert.Equal(t, a1, a2)
	assert.Len(t, a1, 2)
}

func TestSelectBuilder_MarkerMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { selectFrom("assets", "id").Where("id = ? OR id = ?", 1) })
	assert.Panics(t, func() { selectFrom("assets", "id").Where("id = ?", 1, 2) })
}

func TestCandidateQuery_NoValueInterpolation(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := CandidateFilter{
		Category:    model.Category("short'; DROP TABLE assets; --"),
		AsOf:        asOf,
		Exclude:     model.NewAssetSet(3, 1),
		DelayFactor: 0.5,
		Policy:      model.DelayPolicy{BaseDelayHours: 24, AdditionalDelayPerAiring: 2},
	}
	q, args := candidateQuery(f)

	assert.NotContains(t, q, "DROP TABLE")
	assert.Contains(t, q, "NOT (a.id = ANY(")
	assert.Contains(t, q, "make_interval")
	assert.True(t, strings.HasSuffix(q, "LIMIT $"+strconv.Itoa(len(args))))
	assert.Equal(t, DefaultCandidateLimit, args[len(args)-1])
	assert.Contains(t, args, string(f.Category))
	assert.Contains(t, args, 0.5)
}

func TestCandidateQuery_OptionalClauses(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	q, _ := candidateQuery(CandidateFilter{Category: model.CategoryShort, AsOf: asOf})
	assert.NotContains(t, q, "make_interval", "factor 0 suspends spacing")
	assert.NotContains(t, q, "NOT (a.id = ANY(")
	assert.NotContains(t, q, "(m.featured)", "featured is selected but not filtered")

	q, args := candidateQuery(CandidateFilter{AsOf: asOf, Only: model.NewAssetSet(4), FeaturedOnly: true, Limit: 5})
	assert.NotContains(t, q, "a.category =")
	assert.Contains(t, q, "(a.id = ANY(")
	assert.Contains(t, q, "(m.featured)")
	assert.Equal(t, 5, args[len(args)-1])
}

func TestCandidateFilter_SpacingMonotoneInFactor(t *testing.T) {
	asOf := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	policy := model.DelayPolicy{Category: model.CategoryShort, BaseDelayHours: 24, AdditionalDelayPerAiring: 4}
	factors := []float64{1.0, 0.75, 0.5, 0.25, 0.0}

	for hoursAgo := 0; hoursAgo <= 48; hoursAgo += 3 {
		for airings := 0; airings <= 5; airings++ {
			last := asOf.Add(-time.Duration(hoursAgo) * time.Hour)
			m := model.SchedulingMetadata{LastScheduledAt: &last, TotalAirings: airings}
			prev := false
			for _, f := range factors {
				ok := CandidateFilter{AsOf: asOf, DelayFactor: f, Policy: policy}.SpacingSatisfied(m)
				if prev {
					require.True(t, ok, "factor %.2f excluded an asset a stronger factor admitted (%dh, %d airings)", f, hoursAgo, airings)
				}
				prev = ok
			}
			assert.True(t, prev, "factor 0 must admit everything")
		}
	}
}

func TestCandidateFilter_Match(t *testing.T) {
	asOf := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	past, future := asOf.Add(-time.Hour), asOf.Add(time.Hour)
	base := model.Candidate{
		Asset:              model.Asset{ID: 1, Category: model.CategoryShort, DurationSeconds: 60},
		SchedulingMetadata: model.SchedulingMetadata{AssetID: 1, AvailableForScheduling: true},
	}
	f := CandidateFilter{Category: model.CategoryShort, AsOf: asOf}

	assert.True(t, f.Match(base))

	c := base
	c.ContentExpiresAt = &asOf
	assert.False(t, f.Match(c), "expiry at asOf is expired")
	c.ContentExpiresAt = &future
	assert.True(t, f.Match(c))

	c = base
	c.GoLiveAt = &asOf
	assert.True(t, f.Match(c), "go-live at asOf is live")
	c.GoLiveAt = &future
	assert.False(t, f.Match(c))

	c = base
	c.AvailableForScheduling = false
	assert.False(t, f.Match(c))

	c = base
	c.LastScheduledAt = &past
	assert.True(t, f.Match(c), "spacing suspended at factor 0")
	f.DelayFactor = 1
	f.Policy = model.DelayPolicy{BaseDelayHours: 2}
	assert.False(t, f.Match(c))

	f = CandidateFilter{Category: model.CategoryShort, AsOf: asOf, Exclude: model.NewAssetSet(1)}
	assert.False(t, f.Match(base))

	f = CandidateFilter{Category: model.CategoryLong, AsOf: asOf}
	assert.False(t, f.Match(base))

	f = CandidateFilter{AsOf: asOf, Only: model.NewAssetSet(2)}
	assert.False(t, f.Match(base))

	f = CandidateFilter{AsOf: asOf, FeaturedOnly: true}
	assert.False(t, f.Match(base))
}
