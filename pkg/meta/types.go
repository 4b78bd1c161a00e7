package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the timestamp format used in Graph payloads.
const TimeLayout = "2006-01-02T15:04:05-0700"

// ParseTime parses a Graph timestamp, accepting RFC 3339 as well.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid graph timestamp %q", s)
	}
	return t.UTC(), nil
}

// FlexString decodes a JSON string or number into its textual form. Insights
// report counters as strings, webhook payloads sometimes as numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

type Account struct {
	ID            string `json:"id"`
	AccountID     string `json:"account_id"`
	Name          string `json:"name"`
	AccountStatus int    `json:"account_status"`
	Currency      string `json:"currency"`
}

// NumericID returns the account id without the "act_" prefix.
func (a Account) NumericID() string {
	if a.AccountID != "" {
		return a.AccountID
	}
	return strings.TrimPrefix(a.ID, "act_")
}

type Campaign struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Objective   string `json:"objective"`
	Status      string `json:"status"`
	CreatedTime string `json:"created_time"`
}

type AdSet struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	CampaignID       string          `json:"campaign_id"`
	Status           string          `json:"status"`
	OptimizationGoal string          `json:"optimization_goal"`
	Targeting        json.RawMessage `json:"targeting,omitempty"`
}

type Ad struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	AdSetID    string          `json:"adset_id"`
	CampaignID string          `json:"campaign_id"`
	Status     string          `json:"status"`
	Creative   json.RawMessage `json:"creative,omitempty"`
}

// Action is one entry of an insights "actions" list.
type Action struct {
	ActionType string     `json:"action_type"`
	Value      FlexString `json:"value"`
}

// InsightRow is one row of the insights edge. Which id/name pairs are set
// depends on the requested level.
type InsightRow struct {
	CampaignID   string     `json:"campaign_id"`
	CampaignName string     `json:"campaign_name"`
	AdSetID      string     `json:"adset_id"`
	AdSetName    string     `json:"adset_name"`
	AdID         string     `json:"ad_id"`
	AdName       string     `json:"ad_name"`
	Spend        FlexString `json:"spend"`
	Impressions  FlexString `json:"impressions"`
	Clicks       FlexString `json:"clicks"`
	Actions      []Action   `json:"actions"`
	DateStart    string     `json:"date_start"`
	DateStop     string     `json:"date_stop"`
}

// ExternalID returns the id of the row at the given level.
func (r InsightRow) ExternalID(level string) string {
	switch level {
	case LevelAd:
		return r.AdID
	case LevelAdSet:
		return r.AdSetID
	default:
		return r.CampaignID
	}
}

// Page is a Facebook page the token manages. AccessToken is the page token
// and must never be exposed outside the server.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type LeadForm struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	LeadsCount int    `json:"leads_count"`
}

type FieldData struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type Lead struct {
	ID           string      `json:"id"`
	CreatedTime  string      `json:"created_time"`
	FieldData    []FieldData `json:"field_data"`
	AdID         string      `json:"ad_id"`
	AdName       string      `json:"ad_name"`
	AdSetID      string      `json:"adset_id"`
	AdSetName    string      `json:"adset_name"`
	CampaignID   string      `json:"campaign_id"`
	CampaignName string      `json:"campaign_name"`
	FormID       string      `json:"form_id"`
	Platform     string      `json:"platform"`
}

type SubscribedApp struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	SubscribedFields []string `json:"subscribed_fields"`
}

// Insight levels.
const (
	LevelCampaign = "campaign"
	LevelAdSet    = "adset"
	LevelAd       = "ad"
)
