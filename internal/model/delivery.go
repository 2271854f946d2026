// internal/model/delivery.go
package model

import "time"

// Outcome is the terminal result of delivering one campaign message.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeBounced Outcome = "bounced"
	OutcomeFailed  Outcome = "failed"
)

// DeliveryRecord is written once per (campaign, recipient) pair.
type DeliveryRecord struct {
	CampaignID  int64     `db:"campaign_id" json:"campaign_id"`
	RecipientID int64     `db:"recipient_id" json:"recipient_id"`
	MessageID   string    `db:"message_id" json:"message_id"`
	Outcome     Outcome   `db:"outcome" json:"outcome"`
	Attempts    int       `db:"attempts" json:"attempts"`
	LastError   string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DeliveryKey is the idempotency key of a DeliveryRecord.
type DeliveryKey struct {
	CampaignID  int64
	RecipientID int64
}

func (r DeliveryRecord) Key() DeliveryKey {
	return DeliveryKey{CampaignID: r.CampaignID, RecipientID: r.RecipientID}
}
