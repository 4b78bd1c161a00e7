package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign is the top level of the advertising hierarchy.
// Spend and platform lead counts are overwritten on every sync, never accumulated.
type Campaign struct {
	ID                 uuid.UUID  `json:"id"`
	CampaignID         string     `json:"campaign_id"`
	Name               string     `json:"name"`
	Type               string     `json:"type,omitempty"` // platform objective
	Status             string     `json:"status,omitempty"`
	AdAccountID        string     `json:"ad_account_id"`
	SpendUSD           float64    `json:"spend_usd"`
	InsightsLeadsCount int        `json:"insights_leads_count"`
	CreatedTime        *time.Time `json:"created_time,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// AdSet belongs to exactly one Campaign.
type AdSet struct {
	ID                 uuid.UUID `json:"id"`
	AdSetID            string    `json:"adset_id"`
	Name               string    `json:"name"`
	Status             string    `json:"status,omitempty"`
	OptimizationGoal   string    `json:"optimization_goal,omitempty"`
	CampaignID         string    `json:"campaign_id"`
	AdAccountID        string    `json:"ad_account_id"`
	SpendUSD           float64   `json:"spend_usd"`
	InsightsLeadsCount int       `json:"insights_leads_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Ad belongs to exactly one AdSet.
type Ad struct {
	ID                 uuid.UUID `json:"id"`
	AdID               string    `json:"ad_id"`
	Name               string    `json:"name"`
	Status             string    `json:"status,omitempty"`
	AdSetID            string    `json:"adset_id"`
	CampaignID         string    `json:"campaign_id"`
	AdAccountID        string    `json:"ad_account_id"`
	SpendUSD           float64   `json:"spend_usd"`
	InsightsLeadsCount int       `json:"insights_leads_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Insight levels accepted by the platform and used as hierarchy depth filters.
const (
	LevelCampaign = "campaign"
	LevelAdSet    = "adset"
	LevelAd       = "ad"
)

// MetricUpdate carries the spend and platform lead count written back onto a
// campaign, ad set or ad after an insights fetch.
type MetricUpdate struct {
	Level      string
	ExternalID string
	SpendUSD   float64
	LeadsCount int
}

// CampaignFilter narrows the flat campaign list. DateRange matches the
// campaign's platform creation time, or its first sync when that is unknown.
type CampaignFilter struct {
	AdAccountID string
	Search      string
	DateRange   *DateRange
}

// CampaignSummary is one row of the flat campaign list.
type CampaignSummary struct {
	Campaign
	AdAccountName string `json:"ad_account_name"`
	FormLeads     int    `json:"form_leads"`
	// Leads is the platform count when reported, else FormLeads.
	Leads int `json:"leads"`
}
