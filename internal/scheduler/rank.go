package scheduler

import (
	"sort"
	"time"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

// Ranking weights. Fixed so a ranking is reproducible from its inputs alone.
const (
	weightFreshness  = 0.35
	weightEngagement = 0.25
	weightScarcity   = 0.20
	weightRecency    = 0.20
)

const day = 24 * time.Hour

// Scored is a candidate with its composite score and the factor scores behind it.
type Scored struct {
	model.Candidate
	Score      float64 `json:"score"`
	Freshness  float64 `json:"freshness"`
	Engagement float64 `json:"engagement"`
	Scarcity   float64 `json:"scarcity"`
	Recency    float64 `json:"recency"`
}

// Rank scores candidates at asOf and orders them best first. The order is total.
func Rank(cands []model.Candidate, asOf time.Time) []Scored {
	out := make([]Scored, len(cands))
	for i, c := range cands {
		s := Scored{
			Candidate:  c,
			Freshness:  freshnessScore(c.EncodedAt, asOf),
			Engagement: engagementScore(c.EngagementScore),
			Scarcity:   scarcityScore(c.TotalAirings),
			Recency:    recencyScore(c.LastScheduledAt, asOf),
		}
		s.Score = weightFreshness*s.Freshness +
			weightEngagement*s.Engagement +
			weightScarcity*s.Scarcity +
			weightRecency*s.Recency
		out[i] = s
	}
	sort.SliceStable(out, func(i, j int) bool { return rankLess(out[i], out[j]) })
	return out
}

func rankLess(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
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

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

func freshnessScore(encodedAt *time.Time, asOf time.Time) float64 {
	if encodedAt == nil {
		return 0
	}
	age := asOf.Sub(*encodedAt)
	switch {
	case age < 0 || sameDay(asOf, *encodedAt):
		return 100
	case age <= day:
		return 90
	case age <= 3*day:
		return 80
	case age <= 7*day:
		return 60
	case age <= 14*day:
		return 40
	case age <= 30*day:
		return 20
	default:
		return 10
	}
}

func engagementScore(score *float64) float64 {
	if score == nil {
		return model.DefaultEngagement
	}
	return *score
}

func scarcityScore(airings int) float64 {
	switch {
	case airings <= 0:
		return 100
	case airings <= 2:
		return 80
	case airings <= 5:
		return 60
	case airings <= 10:
		return 40
	case airings <= 20:
		return 20
	default:
		return 10
	}
}

func recencyScore(last *time.Time, asOf time.Time) float64 {
	if last == nil {
		return 100
	}
	since := asOf.Sub(*last)
	switch {
	case since >= day:
		return 80
	case since >= 12*time.Hour:
		return 60
	case since >= 6*time.Hour:
		return 40
	case since >= 3*time.Hour:
		return 20
	case since >= time.Hour:
		return 10
	default:
		return 0
	}
}
