package model

import (
	"time"

	"github.com/google/uuid"
)

type ScheduleStatus string

const (
	ScheduleBuilding  ScheduleStatus = "building"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleFailed    ScheduleStatus = "failed"
)

// Schedule is one build target: a channel, a start time and a target length.
type Schedule struct {
	ID            uuid.UUID       `db:"id"             json:"id"`
	Channel       string          `db:"channel"        json:"channel"`
	StartAt       time.Time       `db:"start_at"       json:"start_at"`
	TargetSeconds int             `db:"target_seconds" json:"target_seconds"`
	Status        ScheduleStatus  `db:"status"         json:"status"`
	TotalSeconds  int             `db:"total_seconds"  json:"total_seconds"`
	ItemCount     int             `db:"item_count"     json:"item_count"`
	FailureReason *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `db:"created_at"     json:"created_at"`
	CompletedAt   *time.Time      `db:"completed_at"   json:"completed_at,omitempty"`
	Items         []ScheduledItem `db:"-"              json:"items,omitempty"`
}

// ScheduledItem is one entry of a schedule, in sequence order.
type ScheduledItem struct {
	ScheduleID         uuid.UUID `db:"schedule_id"          json:"schedule_id"`
	Sequence           int       `db:"sequence"             json:"sequence"`
	AssetID            int       `db:"asset_id"             json:"asset_id"`
	Category           Category  `db:"category"             json:"category"`
	StartOffsetSeconds int       `db:"start_offset_seconds" json:"start_offset_seconds"`
	DurationSeconds    int       `db:"duration_seconds"     json:"duration_seconds"`
	DelayFactor        float64   `db:"delay_factor"         json:"delay_factor"`
	PostReset          bool      `db:"post_reset"           json:"post_reset"`
	Featured           bool      `db:"featured"             json:"featured"`
	PoolID             *int      `db:"pool_id"              json:"pool_id,omitempty"`
}

// AirTime returns the wall-clock start of the item within a schedule starting at start.
func (it ScheduledItem) AirTime(start time.Time) time.Time {
	return start.Add(time.Duration(it.StartOffsetSeconds) * time.Second)
}

// EndOffsetSeconds is the offset at which the item finishes.
func (it ScheduledItem) EndOffsetSeconds() int {
	return it.StartOffsetSeconds + it.DurationSeconds
}
