package models

import (
	"fmt"
	"time"
)

// DateLayout is the day format used by the platform's time_range parameter.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Since time.Time
	Until time.Time
}

// ParseDateRange parses two YYYY-MM-DD strings into a DateRange.
func ParseDateRange(since, until string) (DateRange, error) {
	s, err := time.Parse(DateLayout, since)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", since, err)
	}
	u, err := time.Parse(DateLayout, until)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", until, err)
	}
	if u.Before(s) {
		return DateRange{}, fmt.Errorf("end date %s is before start date %s", until, since)
	}
	return DateRange{Since: s, Until: u}, nil
}

// LookbackRange returns the range covering the last days days up to and including now.
func LookbackRange(now time.Time, days int) DateRange {
	until := truncateDay(now)
	return DateRange{Since: until.AddDate(0, 0, -days), Until: until}
}

// SinceString formats the start day.
func (r DateRange) SinceString() string { return r.Since.Format(DateLayout) }

// UntilString formats the end day.
func (r DateRange) UntilString() string { return r.Until.Format(DateLayout) }

// String renders the range as "since..until".
func (r DateRange) String() string {
	return r.SinceString() + ".." + r.UntilString()
}

// EndExclusive returns midnight after the last day, for timestamp comparisons.
func (r DateRange) EndExclusive() time.Time {
	return truncateDay(r.Until).AddDate(0, 0, 1)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
