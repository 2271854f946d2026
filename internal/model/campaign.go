// internal/model/campaign.go
package model

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusScheduled CampaignStatus = "scheduled"
	StatusSending   CampaignStatus = "sending"
	StatusCompleted CampaignStatus = "completed"
	StatusFailed    CampaignStatus = "failed"
	StatusCancelled CampaignStatus = "cancelled"
)

// transitions is the complete table of permitted lifecycle moves.
// Anything not listed here is rejected.
var transitions = map[CampaignStatus][]CampaignStatus{
	StatusDraft:     {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusSending, StatusCancelled},
	StatusSending:   {StatusCompleted, StatusFailed},
}

// CanTransition reports whether moving from s to next is in the table.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition leaves s.
func (s CampaignStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusSending, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AllStatuses lists every lifecycle state in declaration order.
func AllStatuses() []CampaignStatus {
	return []CampaignStatus{StatusDraft, StatusScheduled, StatusSending, StatusCompleted, StatusFailed, StatusCancelled}
}

// Counters are the aggregate delivery/engagement numbers kept on a campaign.
type Counters struct {
	Sent    int `db:"sent_count" json:"sent_count"`
	Failed  int `db:"failed_count" json:"failed_count"`
	Bounced int `db:"bounced_count" json:"bounced_count"`
	Opened  int `db:"open_count" json:"open_count"`
	Clicked int `db:"click_count" json:"click_count"`
}

type Campaign struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	TemplateID int64  `db:"template_id" json:"template_id"`
	// Subject and Body are the template patterns captured at creation time.
	Subject     string            `db:"subject" json:"subject"`
	Body        string            `db:"body" json:"body"`
	Variables   map[string]string `db:"variables" json:"variables,omitempty"`
	Target      TargetSpec        `db:"target" json:"target"`
	Status      CampaignStatus    `db:"status" json:"status"`
	ScheduledAt *time.Time        `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time        `db:"updated_at" json:"updated_at,omitempty"`

	// RecipientIDs is resolved on submission and frozen afterwards.
	RecipientIDs  []int64  `db:"recipient_ids" json:"recipient_ids,omitempty"`
	TargetCount   int      `db:"target_count" json:"target_count"`
	Counters      Counters `json:"counters"`
	FailureReason string   `db:"failure_reason" json:"failure_reason,omitempty"`
}

// IsDue reports whether a scheduled campaign may start sending at now.
func (c *Campaign) IsDue(now time.Time) bool {
	return c.ScheduledAt == nil || !now.Before(*c.ScheduledAt)
}

// StatusChange carries the fields written together with a status transition.
type StatusChange struct {
	From CampaignStatus
	To   CampaignStatus
	At   time.Time
	// RecipientIDs replaces the resolved recipient set when non-nil.
	RecipientIDs  []int64
	FailureReason string
}

// CampaignFilter narrows campaign listings.
type CampaignFilter struct {
	Status CampaignStatus
	Offset int
	Limit  int
}
