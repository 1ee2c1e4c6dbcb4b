package timeutil

import (
	"sync/atomic"
	"time"
)

var location atomic.Pointer[time.Location]

func init() {
	location.Store(time.Local)
}

// SetLocation changes the ledger timezone. An unknown name falls back to UTC.
func SetLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil || name == "" {
		loc = time.UTC
	}
	location.Store(loc)
	return loc
}

// Location returns the ledger timezone.
func Location() *time.Location {
	return location.Load()
}

// Now returns the current time in the ledger timezone.
func Now() time.Time {
	return time.Now().In(Location())
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last second of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

// AddInterval advances t by n units of day, week, month or year.
// Unknown units advance by months.
func AddInterval(t time.Time, n int, unit string) time.Time {
	if n <= 0 {
		n = 1
	}
	switch unit {
	case "day":
		return t.AddDate(0, 0, n)
	case "week":
		return t.AddDate(0, 0, 7*n)
	case "year":
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, n, 0)
	}
}
