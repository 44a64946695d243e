package store

import (
	"strings"
	"time"
)

// Accepted layouts for human-entered date/time search terms, widest first so
// 4-digit years win over 2-digit ones. The time portion may come before or
// after the date, and how much of it is present sets the granularity: a
// seconds field narrows the match to one second, minutes to one minute, a
// bare hour to one hour, and a date alone to the whole day.
var searchTimeLayouts = []struct {
	layout string
	width  time.Duration
}{
	{"2/1/2006 15:04:05", time.Second},
	{"15:04:05 2/1/2006", time.Second},
	{"2/1/06 15:04:05", time.Second},
	{"15:04:05 2/1/06", time.Second},
	{"2006-01-02 15:04:05", time.Second},
	{"2/1/2006 15:04", time.Minute},
	{"15:04 2/1/2006", time.Minute},
	{"2/1/06 15:04", time.Minute},
	{"15:04 2/1/06", time.Minute},
	{"2006-01-02 15:04", time.Minute},
	{"2/1/2006 15", time.Hour},
	{"2/1/06 15", time.Hour},
	{"2006-01-02 15", time.Hour},
	{"2/1/2006", 24 * time.Hour},
	{"2/1/06", 24 * time.Hour},
	{"2006-01-02", 24 * time.Hour},
}

// parseSearchTime interprets term as a date/time entered in loc (the local
// time of entry) and returns the UTC start of the matched interval together
// with the interval width. ok is false when term is not a date at all.
func parseSearchTime(term string, loc *time.Location) (start time.Time, width time.Duration, ok bool) {
	term = strings.Join(strings.Fields(term), " ")
	if term == "" {
		return time.Time{}, 0, false
	}
	for _, c := range searchTimeLayouts {
		t, err := time.ParseInLocation(c.layout, term, loc)
		if err != nil {
			continue
		}
		return t.UTC(), c.width, true
	}
	return time.Time{}, 0, false
}
