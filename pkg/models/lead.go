package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead sources
const (
	LeadSourceSync    = "sync"
	LeadSourceWebhook = "webhook"
)

// Lead is one form submission. Immutable once inserted; LeadID is the dedup key.
type Lead struct {
	ID           uuid.UUID `json:"id"`
	LeadID       string    `json:"lead_id"`
	FormID       string    `json:"form_id,omitempty"`
	FormName     string    `json:"form_name,omitempty"`
	PageID       string    `json:"page_id,omitempty"`
	AdID         string    `json:"ad_id,omitempty"`
	AdName       string    `json:"ad_name,omitempty"`
	AdSetID      string    `json:"ad_set_id,omitempty"`
	AdSetName    string    `json:"ad_set_name,omitempty"`
	CampaignID   string    `json:"campaign_id,omitempty"`
	CampaignName string    `json:"campaign_name,omitempty"`
	AdAccountID  string    `json:"ad_account_id,omitempty"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"` // capture time on the platform
	IngestedAt   time.Time `json:"ingested_at"`

	// Fields holds the submitted values before insert. Not a column.
	Fields []LeadField `json:"-"`
}

// LeadField is one raw submitted field before it is stored. MappedName is
// the canonical name resolved at write time, nil when unmapped.
type LeadField struct {
	Name       string
	MappedName *string
	Value      string
}

// LeadFieldValue is one stored form field of a lead.
type LeadFieldValue struct {
	ID              int64     `json:"id"`
	LeadID          uuid.UUID `json:"lead_id"`
	FieldName       string    `json:"field_name"`
	MappedFieldName *string   `json:"mapped_field_name,omitempty"`
	FieldValue      string    `json:"field_value"`
}

// LeadListItem is a lead row joined with account and campaign names.
type LeadListItem struct {
	Lead
	AdAccountName      string `json:"ad_account_name"`
	StoredCampaignName string `json:"stored_campaign_name"`
}

// LeadFilter selects leads for the dashboard list.
type LeadFilter struct {
	DateRange   *DateRange
	AdAccountID string
	CampaignID  string
	FormName    string
	Search      string
	Page        int
	Limit       int
}

// LeadPage is one page of leads plus the total match count.
type LeadPage struct {
	Items []*LeadListItem `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// LeadDetail is a lead with its field values resolved to canonical names.
type LeadDetail struct {
	*LeadListItem
	Fields []LeadDetailField `json:"fields"`
}

// LeadDetailField is one field value in a lead detail response.
type LeadDetailField struct {
	Name       string   `json:"name"`
	MappedName *string  `json:"mapped_name"`
	Values     []string `json:"values"`
}

// FieldSample is a stored field name/value pair used for unmapped-field discovery.
type FieldSample struct {
	FieldName  string
	FieldValue string
}
