package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReviewStatus(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		cadence string
		last    string
		want    Status
	}{
		{"monthly fresh", "monthly", "2026-03-01", Current},
		{"monthly at window edge", "monthly", "2026-02-21", Current},
		{"monthly due soon", "monthly", "2026-02-18", DueSoon},
		{"monthly at interval", "monthly", "2026-02-13", DueSoon},
		{"monthly overdue after 45 days", "monthly", "2026-01-29", Overdue},
		{"quarterly current", "quarterly", "2026-01-01", Current},
		{"annual due soon", "annual", "2025-03-30", DueSoon},
		{"semi-annual overdue", "Semi-Annual", "2025-09-01", Overdue},
		{"unknown cadence is annual", "weekly", "2025-06-01", Current},
		{"timestamp input", "monthly", "2026-03-10T08:00:00Z", Current},
		{"missing date", "monthly", "", NoData},
		{"garbage date", "monthly", "last week", NoData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, GetReviewStatus(tc.cadence, tc.last, now))
		})
	}
}

func TestDaysBetweenUsesCalendarDates(t *testing.T) {
	a := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	b := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, -1, DaysBetween(b, a))
}

func TestFormatDateInLocation(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	ts := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-14", FormatDate(ts, chicago))
	assert.Equal(t, "2026-03-15", FormatDate(ts, nil))
}

func TestCadenceDays(t *testing.T) {
	assert.Equal(t, 30, CadenceDays("monthly"))
	assert.Equal(t, 91, CadenceDays("quarterly"))
	assert.Equal(t, 365, CadenceDays(""))
}

func TestReviewStatusComparesDatesInNowLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2026, 4, 15, 1, 0, 0, 0, tokyo)

	// 16:00 UTC on March 15 is March 16 in Tokyo, 30 days before now.
	assert.Equal(t, DueSoon, GetReviewStatus("monthly", "2026-03-15T16:00:00Z", now))
	assert.Equal(t, DueSoon, GetReviewStatus("monthly", "2026-03-16", now))
	assert.Equal(t, Overdue, GetReviewStatus("monthly", "2026-03-15", now))
}

func TestParseDateIn(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	d, ok := ParseDateIn("2026-03-15", tokyo)
	require.True(t, ok)
	assert.True(t, d.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, tokyo)))

	ts, ok := ParseDateIn("2026-03-15T20:00:00Z", tokyo)
	require.True(t, ok)
	assert.Equal(t, 16, ts.Day())

	_, ok = ParseDateIn("yesterday", tokyo)
	assert.False(t, ok)
}
