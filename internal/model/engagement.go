// internal/model/engagement.go
package model

import "time"

type EngagementKind string

const (
	EngagementOpen  EngagementKind = "open"
	EngagementClick EngagementKind = "click"
)

func (k EngagementKind) Valid() bool {
	return k == EngagementOpen || k == EngagementClick
}

// EngagementEvent is a single open or click. Many may exist per recipient.
type EngagementEvent struct {
	ID          string         `db:"id" json:"id"`
	CampaignID  int64          `db:"campaign_id" json:"campaign_id"`
	RecipientID int64          `db:"recipient_id" json:"recipient_id"`
	Kind        EngagementKind `db:"kind" json:"kind"`
	OccurredAt  time.Time      `db:"occurred_at" json:"occurred_at"`
}
