// internal/model/stats.go
package model

import "time"

// CampaignStats is a point-in-time snapshot of one campaign's metrics.
// Rates are percentages in [0, 100].
type CampaignStats struct {
	CampaignID   int64   `json:"campaign_id"`
	TargetCount  int     `json:"target_count"`
	SentCount    int     `json:"sent_count"`
	FailedCount  int     `json:"failed_count"`
	BouncedCount int     `json:"bounced_count"`
	OpenCount    int     `json:"open_count"`
	ClickCount   int     `json:"click_count"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

// StatsTotals sums CampaignStats over a set of campaigns.
type StatsTotals struct {
	Campaigns    int     `json:"campaigns"`
	TargetCount  int     `json:"target_count"`
	SentCount    int     `json:"sent_count"`
	FailedCount  int     `json:"failed_count"`
	BouncedCount int     `json:"bounced_count"`
	OpenCount    int     `json:"open_count"`
	ClickCount   int     `json:"click_count"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}

// DailyStat is one point of the daily activity series.
type DailyStat struct {
	Date    time.Time `json:"date"`
	Sent    int       `json:"sent"`
	Opened  int       `json:"opened"`
	Clicked int       `json:"clicked"`
}
