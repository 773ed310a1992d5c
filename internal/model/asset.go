package model

import (
	"sort"
	"time"
)

// Category is the duration class an asset rotates in.
type Category string

const (
	CategoryMicro  Category = "micro"
	CategoryShort  Category = "short"
	CategoryMedium Category = "medium"
	CategoryLong   Category = "long"
)

// DefaultEngagement is used for ranking when an asset has no engagement score.
const DefaultEngagement = 50.0

type Asset struct {
	ID              int        `db:"id"               json:"id"`
	Title           string     `db:"title"            json:"title"`
	Category        Category   `db:"category"         json:"category"`
	DurationSeconds int        `db:"duration_seconds" json:"duration_seconds"`
	EngagementScore *float64   `db:"engagement_score" json:"engagement_score,omitempty"`
	EncodedAt       *time.Time `db:"encoded_at"       json:"encoded_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at"       json:"created_at"`
}

// Duration returns the nominal on-air length of the asset.
func (a Asset) Duration() time.Duration {
	return time.Duration(a.DurationSeconds) * time.Second
}

// SchedulingMetadata is the per-asset rotation state. One row per asset.
type SchedulingMetadata struct {
	AssetID                int        `db:"asset_id"                 json:"asset_id"`
	LastScheduledAt        *time.Time `db:"last_scheduled_at"        json:"last_scheduled_at,omitempty"`
	TotalAirings           int        `db:"total_airings"            json:"total_airings"`
	ContentExpiresAt       *time.Time `db:"content_expires_at"       json:"content_expires_at,omitempty"`
	GoLiveAt               *time.Time `db:"go_live_at"               json:"go_live_at,omitempty"`
	AvailableForScheduling bool       `db:"available_for_scheduling" json:"available_for_scheduling"`
	Featured               bool       `db:"featured"                 json:"featured"`
}

// Eligible reports whether the asset may air at t, ignoring replay spacing.
func (m SchedulingMetadata) Eligible(t time.Time) bool {
	if m.ContentExpiresAt != nil && !m.ContentExpiresAt.After(t) {
		return false
	}
	if m.GoLiveAt != nil && m.GoLiveAt.After(t) {
		return false
	}
	return m.AvailableForScheduling
}

// Candidate is an asset joined with its scheduling metadata, as returned by the catalog.
type Candidate struct {
	Asset
	SchedulingMetadata
}

// SchedulingHold blocks an asset from selection while open.
type SchedulingHold struct {
	ID        int        `db:"id"         json:"id"`
	AssetID   int        `db:"asset_id"   json:"asset_id"`
	Reason    string     `db:"reason"     json:"reason"`
	Until     *time.Time `db:"until"      json:"until,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Open reports whether the hold still applies at t.
func (h SchedulingHold) Open(t time.Time) bool {
	return h.Until == nil || h.Until.After(t)
}

// AssetSet is a set of asset ids.
type AssetSet map[int]struct{}

func NewAssetSet(ids ...int) AssetSet {
	s := make(AssetSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s AssetSet) Add(id int) { s[id] = struct{}{} }

func (s AssetSet) Remove(id int) { delete(s, id) }

func (s AssetSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

func (s AssetSet) Len() int { return len(s) }

// IDs returns the members in ascending order.
func (s AssetSet) IDs() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy.
func (s AssetSet) Clone() AssetSet {
	out := make(AssetSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}
