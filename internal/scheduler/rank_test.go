package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

func TestFreshnessScore(t *testing.T) {
	asOf := time.Date(2026, 6, 10, 18, 0, 0, 0, time.UTC)
	cases := []struct {
		encoded *time.Time
		want    float64
	}{
		{nil, 0},
		{ptr(time.Date(2026, 6, 10, 0, 30, 0, 0, time.UTC)), 100},
		{ptr(asOf.Add(time.Hour)), 100},
		{ptr(time.Date(2026, 6, 9, 23, 0, 0, 0, time.UTC)), 90},
		{ptr(asOf.Add(-3 * day)), 80},
		{ptr(asOf.Add(-7 * day)), 60},
		{ptr(asOf.Add(-14 * day)), 40},
		{ptr(asOf.Add(-30 * day)), 20},
		{ptr(asOf.Add(-31 * day)), 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, freshnessScore(tc.encoded, asOf), "encoded %v", tc.encoded)
	}
}

func TestScarcityScore(t *testing.T) {
	for airings, want := range map[int]float64{0: 100, 1: 80, 2: 80, 3: 60, 5: 60, 6: 40, 10: 40, 11: 20, 20: 20, 21: 10, 500: 10} {
		assert.Equal(t, want, scarcityScore(airings), "airings %d", airings)
	}
}

func TestRecencyScore(t *testing.T) {
	asOf := t0
	cases := []struct {
		ago  time.Duration
		want float64
	}{
		{24 * time.Hour, 80},
		{12 * time.Hour, 60},
		{6 * time.Hour, 40},
		{3 * time.Hour, 20},
		{time.Hour, 10},
		{59 * time.Minute, 0},
	}
	assert.Equal(t, 100.0, recencyScore(nil, asOf))
	for _, tc := range cases {
		assert.Equal(t, tc.want, recencyScore(ptr(asOf.Add(-tc.ago)), asOf), "ago %s", tc.ago)
	}
}

func TestRank_WeightedTotal(t *testing.T) {
	c := model.Candidate{
		Asset: model.Asset{ID: 1, EngagementScore: ptr(80.0), EncodedAt: ptr(t0.Add(-2 * day))},
		SchedulingMetadata: model.SchedulingMetadata{
			TotalAirings:    4,
			LastScheduledAt: ptr(t0.Add(-7 * time.Hour)),
		},
	}
	got := Rank([]model.Candidate{c}, t0)
	assert.InDelta(t, 0.35*80+0.25*80+0.20*60+0.20*40, got[0].Score, 1e-9)

	c.EngagementScore = nil
	got = Rank([]model.Candidate{c}, t0)
	assert.Equal(t, model.DefaultEngagement, got[0].Engagement)
}

func TestRank_TieBreaks(t *testing.T) {
	mk := func(id int, last *time.Time, airings int, encoded *time.Time) model.Candidate {
		return model.Candidate{
			Asset:              model.Asset{ID: id, EncodedAt: encoded},
			SchedulingMetadata: model.SchedulingMetadata{LastScheduledAt: last, TotalAirings: airings},
		}
	}
	older := ptr(t0.Add(-40 * time.Hour))
	newer := ptr(t0.Add(-30 * time.Hour))
	enc1 := ptr(t0.Add(-40 * day))
	enc2 := ptr(t0.Add(-50 * day))

	cands := []model.Candidate{
		mk(6, newer, 1, enc1),
		mk(5, older, 2, enc1),
		mk(4, older, 1, nil),
		mk(3, older, 1, enc2),
		mk(2, older, 1, enc1),
		mk(1, older, 1, enc1),
	}
	got := Rank(cands, t0)

	// all score alike except 4, whose unknown encode date costs freshness
	ids := make([]int, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	assert.Equal(t, []int{1, 2, 3, 5, 6, 4}, ids)
}

func TestRank_Deterministic(t *testing.T) {
	var cands []model.Candidate
	for i := 1; i <= 20; i++ {
		cands = append(cands, model.Candidate{
			Asset:              model.Asset{ID: i, EngagementScore: ptr(float64(i % 3 * 10))},
			SchedulingMetadata: model.SchedulingMetadata{TotalAirings: i % 4},
		})
	}
	first := Rank(cands, t0)
	for i, j := 0, len(cands)-1; i < j; i, j = i+1, j-1 {
		cands[i], cands[j] = cands[j], cands[i]
	}
	second := Rank(cands, t0)
	assert.Equal(t, first, second)
}
