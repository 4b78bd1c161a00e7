package meta

import "github.com/ekaya-inc/ekaya-adsync/pkg/models"

// DefaultWindowDays is the widest span requested for per-day insights.
const DefaultWindowDays = 90

// SplitDateRange cuts r into consecutive inclusive windows of at most days
// days. A single-day range yields one window.
func SplitDateRange(r models.DateRange, days int) []models.DateRange {
	if days <= 0 {
		days = DefaultWindowDays
	}
	var windows []models.DateRange
	for start := r.Since; !start.After(r.Until); {
		end := start.AddDate(0, 0, days-1)
		if end.After(r.Until) {
			end = r.Until
		}
		windows = append(windows, models.DateRange{Since: start, Until: end})
		start = end.AddDate(0, 0, 1)
	}
	return windows
}
