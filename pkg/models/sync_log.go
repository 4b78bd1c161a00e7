package models

import "time"

// Sync log types
const (
	SyncTypeSpend    = "spend"
	SyncTypeLeads    = "leads"
	SyncTypeLeadForm = "lead_form"
	SyncTypeWebhook  = "webhook"
)

// Sync log statuses
const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SyncLog is one append-only audit row per sync attempt.
type SyncLog struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	AdAccountID  *string   `json:"ad_account_id,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
