package packets

import "time"

type BuildScheduleRequest struct {
	Channel       string    `json:"channel" binding:"required"`
	Start         time.Time `json:"start" binding:"required"`
	TargetSeconds int       `json:"target_seconds" binding:"required,min=1"`
	// Pattern is a comma separated slot list such as "short,medium,pool:2".
	Pattern string `json:"pattern"`
}

type AssignPoolRequest struct {
	StartDate   string `json:"start_date" binding:"required"`
	NumDays     int    `json:"num_days" binding:"required,min=1"`
	ItemsPerDay int    `json:"items_per_day" binding:"required,min=1"`
}

type PlaceHoldRequest struct {
	AssetID int        `json:"asset_id" binding:"required"`
	Reason  string     `json:"reason"`
	Until   *time.Time `json:"until"`
}
