package processor

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ExpiryLayout    = "02-Jan-2006"
	TimestampLayout = "02-Jan-2006 15:04:05"
)

const (
	StatusOpen    = "Open"
	StatusPreOpen = "Pre-Open"
	StatusClosed  = "Closed"
	StatusWeekend = "Closed (Weekend)"
	StatusUnknown = "Unknown"
)

// NearestExpiry returns the earliest listed expiry on or after today in
// loc. When every parseable expiry is in the past the first listed one is
// returned. An empty string means nothing was listed.
func NearestExpiry(dates []string, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	type candidate struct {
		text string
		at   time.Time
	}
	var upcoming []candidate
	for _, d := range dates {
		at, err := time.ParseInLocation(ExpiryLayout, strings.TrimSpace(d), loc)
		if err != nil {
			continue
		}
		if !at.Before(today) {
			upcoming = append(upcoming, candidate{text: d, at: at})
		}
	}
	if len(upcoming) == 0 {
		if len(dates) > 0 {
			return dates[0]
		}
		return ""
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].at.Before(upcoming[j].at) })
	return upcoming[0].text
}

// MarketStatus classifies an upstream timestamp against the NSE session:
// pre-open before 09:15, open until 15:30 inclusive, closed otherwise.
func MarketStatus(timestamp string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	at, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(timestamp), loc)
	if err != nil {
		return StatusUnknown
	}

	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return StatusWeekend
	}
	minutes := at.Hour()*60 + at.Minute()
	switch {
	case minutes < 9*60+15:
		return StatusPreOpen
	case minutes <= 15*60+30:
		return StatusOpen
	}
	return StatusClosed
}

// YearsToExpiry is the time from now until 15:30 on the expiry day in loc,
// in years of 365 days. It is zero once expiry has passed.
func YearsToExpiry(expiry string, now time.Time, loc *time.Location) (float64, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(ExpiryLayout, strings.TrimSpace(expiry), loc)
	if err != nil {
		return 0, fmt.Errorf("parse expiry %q: %w", expiry, err)
	}
	cutoff := day.Add(15*time.Hour + 30*time.Minute)
	left := cutoff.Sub(now)
	if left <= 0 {
		return 0, nil
	}
	return left.Hours() / 24 / 365, nil
}
