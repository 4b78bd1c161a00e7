package models

import "time"

// DailyInsight is one day of metrics for a campaign, ad set or ad.
// AdSetID and AdID are empty for campaign-level rows; AdID is empty for ad-set rows.
type DailyInsight struct {
	Date         time.Time `json:"date"`
	CampaignID   string    `json:"campaign_id"`
	AdSetID      string    `json:"adset_id,omitempty"`
	AdID         string    `json:"ad_id,omitempty"`
	CampaignName string    `json:"campaign_name,omitempty"`
	AdSetName    string    `json:"adset_name,omitempty"`
	AdName       string    `json:"ad_name,omitempty"`
	SpendUSD     float64   `json:"spend_usd"`
	LeadsCount   int       `json:"leads_count"`
	Impressions  int64     `json:"impressions"`
	Clicks       int64     `json:"clicks"`
	AdAccountID  string    `json:"ad_account_id"`
}

// Level reports which hierarchy level the row aggregates into.
func (d *DailyInsight) Level() string {
	switch {
	case d.AdID != "":
		return LevelAd
	case d.AdSetID != "":
		return LevelAdSet
	default:
		return LevelCampaign
	}
}
