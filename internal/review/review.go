// Package review classifies how current a metric's data is relative to its
// collection cadence.
package review

import (
	"strings"
	"time"
)

type Status string

const (
	Current Status = "current"
	DueSoon Status = "due-soon"
	Overdue Status = "overdue"
	NoData  Status = "no-data"
)

const dateLayout = "2006-01-02"

type cadence struct {
	interval int
	window   int
}

var cadences = map[string]cadence{
	"monthly":     {interval: 30, window: 7},
	"quarterly":   {interval: 91, window: 14},
	"semi-annual": {interval: 182, window: 30},
	"annual":      {interval: 365, window: 30},
}

// CadenceDays returns the expected days between entries. Unknown cadences are
// treated as annual.
func CadenceDays(c string) int {
	return lookup(c).interval
}

func lookup(c string) cadence {
	if cd, ok := cadences[strings.ToLower(strings.TrimSpace(c))]; ok {
		return cd
	}
	return cadences["annual"]
}

// GetReviewStatus classifies the latest entry date against the cadence. A
// metric is overdue once more than one full interval has passed, and due soon
// within the last window of the interval. A missing or unparseable date is
// NoData.
func GetReviewStatus(c string, lastEntryDate string, now time.Time) Status {
	last, ok := ParseDateIn(lastEntryDate, now.Location())
	if !ok {
		return NoData
	}
	cd := lookup(c)
	days := DaysBetween(last, now)
	switch {
	case days > cd.interval:
		return Overdue
	case days > cd.interval-cd.window:
		return DueSoon
	default:
		return Current
	}
}

// ParseDate accepts YYYY-MM-DD or an RFC3339 timestamp, in UTC.
func ParseDate(s string) (time.Time, bool) {
	return ParseDateIn(s, time.UTC)
}

// ParseDateIn parses s for calendar comparisons in loc. A bare date is that
// day in loc; a timestamp is converted to loc so its calendar date is the one
// seen there.
func ParseDateIn(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, true
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// DaysBetween counts calendar days from a to b using each value's own
// calendar date, so both should be in the same location. It is negative when
// b precedes a.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

// FormatDate renders t as YYYY-MM-DD in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateLayout)
}
