// Package insights turns raw insights rows into the spend and lead figures
// stored on campaigns, ad sets, ads and daily rows.
package insights

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-adsync/pkg/meta"
)

// leadActionTypes are the labels the platform uses for the same form lead.
var leadActionTypes = map[string]struct{}{
	"lead":                             {},
	"leadgen_grouped":                  {},
	"onsite_conversion.lead_grouped":   {},
	"onsite_conversion.lead":           {},
	"offsite_conversion.fb_pixel_lead": {},
	"onsite_web_lead":                  {},
}

// IsLeadAction reports whether an action label counts as a lead.
func IsLeadAction(actionType string) bool {
	if _, ok := leadActionTypes[actionType]; ok {
		return true
	}
	return strings.Contains(strings.ToLower(actionType), "lead")
}

// LeadCount returns the largest value among lead-like actions. One lead is
// reported under several overlapping labels, so the values are not summed.
func LeadCount(actions []meta.Action) int {
	best := 0
	for _, a := range actions {
		if !IsLeadAction(a.ActionType) {
			continue
		}
		if n := int(ParseCount(a.Value.String())); n > best {
			best = n
		}
	}
	return best
}

// ParseSpend parses a decimal spend string at full precision. Missing or
// malformed values are 0.
func ParseSpend(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// ParseCount parses an integer counter such as impressions. Fractional
// values are truncated; malformed values are 0.
func ParseCount(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.IntPart()
}

// Metrics is the extracted view of one insights row.
type Metrics struct {
	SpendUSD    float64
	LeadsCount  int
	Impressions int64
	Clicks      int64
}

// Extract pulls spend, leads, impressions and clicks out of a row.
func Extract(row meta.InsightRow) Metrics {
	return Metrics{
		SpendUSD:    ParseSpend(row.Spend.String()),
		LeadsCount:  LeadCount(row.Actions),
		Impressions: ParseCount(row.Impressions.String()),
		Clicks:      ParseCount(row.Clicks.String()),
	}
}

// Summary maps every action label in rows to its summed value. Used when
// debugging which labels an account reports.
func Summary(rows []meta.InsightRow) map[string]int64 {
	out := make(map[string]int64)
	for _, r := range rows {
		for _, a := range r.Actions {
			out[a.ActionType] += ParseCount(a.Value.String())
		}
	}
	return out
}
