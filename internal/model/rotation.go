package model

import "time"

// RotationPool is a small named set of assets balanced by usage count.
type RotationPool struct {
	ID        int       `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RotationRecord tracks one pool member.
type RotationRecord struct {
	PoolID          int        `db:"pool_id"           json:"pool_id"`
	AssetID         int        `db:"asset_id"          json:"asset_id"`
	ScheduledCount  int        `db:"scheduled_count"   json:"scheduled_count"`
	LastScheduledAt *time.Time `db:"last_scheduled_at" json:"last_scheduled_at,omitempty"`
}

// PoolMember is a rotation record joined with the member's asset and metadata.
type PoolMember struct {
	RotationRecord
	Candidate Candidate `json:"candidate"`
}

// DayAssignment maps the window [Start, End) of one day to a fixed set of pool members.
type DayAssignment struct {
	PoolID   int       `json:"pool_id"`
	DayIndex int       `json:"day_index"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AssetIDs []int     `json:"asset_ids"`
}

// Contains reports whether t falls within the assignment's day.
func (d DayAssignment) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}
