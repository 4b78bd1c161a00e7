package models

import (
	"strconv"
	"strings"
)

// HierarchyFilter selects and shapes a hierarchy read.
type HierarchyFilter struct {
	AdAccountID string
	Search      string
	Country     string
	Level       string // "", "campaign", "adset" or "ad"
	DateRange   *DateRange
}

// CacheKey derives a stable key from every filter parameter. Each field is
// length-prefixed so values containing the separator cannot collide. The
// country is upper-cased since matching ignores case.
func (f HierarchyFilter) CacheKey() string {
	dr := ""
	if f.DateRange != nil {
		dr = f.DateRange.String()
	}
	var b strings.Builder
	b.WriteString("hierarchy")
	for _, part := range []string{f.AdAccountID, f.Search, strings.ToUpper(f.Country), f.Level, dr} {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// Hierarchy is the assembled campaign tree returned to the dashboard.
type Hierarchy struct {
	Campaigns []*CampaignNode `json:"campaigns"`
	Totals    HierarchyTotals `json:"totals"`
}

// HierarchyTotals sums the surviving campaigns.
type HierarchyTotals struct {
	Campaigns int     `json:"campaigns"`
	AdSets    int     `json:"ad_sets"`
	Ads       int     `json:"ads"`
	SpendUSD  float64 `json:"spend_usd"`
	Leads     int     `json:"leads"`
}

// NodeMetrics are the figures shown on every tree node.
type NodeMetrics struct {
	SpendUSD      float64 `json:"spend_usd"`
	Leads         int     `json:"leads"`
	PlatformLeads int     `json:"platform_leads"`
	FormLeads     int     `json:"form_leads"`
}

// CampaignNode is a campaign with its ad sets.
type CampaignNode struct {
	CampaignID  string `json:"campaign_id"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Status      string `json:"status,omitempty"`
	AdAccountID string `json:"ad_account_id"`
	NodeMetrics
	Countries []string     `json:"countries"`
	AdSets    []*AdSetNode `json:"ad_sets"`

	DirectCountries []string `json:"-"`
}

// AdSetNode is an ad set with its ads.
type AdSetNode struct {
	AdSetID          string `json:"adset_id"`
	Name             string `json:"name"`
	Status           string `json:"status,omitempty"`
	OptimizationGoal string `json:"optimization_goal,omitempty"`
	CampaignID       string `json:"campaign_id"`
	NodeMetrics
	Countries []string  `json:"countries"`
	Ads       []*AdNode `json:"ads"`

	DirectCountries []string `json:"-"`
}

// AdNode is a leaf of the hierarchy.
type AdNode struct {
	AdID       string `json:"ad_id"`
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
	AdSetID    string `json:"adset_id"`
	CampaignID string `json:"campaign_id"`
	NodeMetrics
	Countries []string `json:"countries"`
}
