package models

import "time"

// DashboardStats are the headline figures of the dashboard.
type DashboardStats struct {
	TotalSpend    float64    `json:"total_spend"`
	TotalLeads    int        `json:"total_leads"`
	LastSpendSync *time.Time `json:"last_spend_sync"`
	LastLeadsSync *time.Time `json:"last_leads_sync"`
}
