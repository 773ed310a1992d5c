package model

import "time"

// DelayPolicy sets the replay spacing for a category.
type DelayPolicy struct {
	Category                 Category `db:"category"                    json:"category"                    yaml:"category"`
	BaseDelayHours           float64  `db:"base_delay_hours"            json:"base_delay_hours"            yaml:"base_delay_hours"`
	AdditionalDelayPerAiring float64  `db:"additional_delay_per_airing" json:"additional_delay_per_airing" yaml:"additional_delay_per_airing"`
}

// RequiredDelay is the spacing needed before an asset with n prior airings may repeat.
func (p DelayPolicy) RequiredDelay(n int) time.Duration {
	hours := p.BaseDelayHours + float64(n)*p.AdditionalDelayPerAiring
	return time.Duration(hours * float64(time.Hour))
}
