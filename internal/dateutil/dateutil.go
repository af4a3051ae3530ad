// Package dateutil formats and classifies task due dates.
//
// Every function is total: missing input ("") and unparseable input degrade to
// a fixed fallback string or false instead of an error. The *At variants take
// the reference instant explicitly; the plain variants use time.Now.
package dateutil

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	NoDueDate   = "No due date"
	InvalidDate = "Invalid date"

	// DateLayout is the calendar-date form used by date inputs and the store.
	DateLayout = "2006-01-02"

	displayLayout = "Jan 2, 2006"
	day           = 24 * time.Hour
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	DateLayout,
}

// Parse reads s in any accepted layout. Layouts without an offset are
// interpreted in loc, so "2024-03-01" is local midnight.
func Parse(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StartOfDay returns 00:00 of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func FormatDate(s string) string {
	return FormatDateIn(s, time.Local)
}

func FormatDateIn(s string, loc *time.Location) string {
	if strings.TrimSpace(s) == "" {
		return NoDueDate
	}
	t, ok := Parse(s, loc)
	if !ok {
		return InvalidDate
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(displayLayout)
}

func IsOverdue(s string) bool {
	return IsOverdueAt(s, time.Now())
}

// IsOverdueAt reports whether s is strictly before the start of now's day.
func IsOverdueAt(s string, now time.Time) bool {
	t, ok := Parse(s, now.Location())
	if !ok {
		return false
	}
	return t.Before(StartOfDay(now))
}

func IsToday(s string) bool {
	return IsTodayAt(s, time.Now())
}

func IsTodayAt(s string, now time.Time) bool {
	t, ok := Parse(s, now.Location())
	if !ok {
		return false
	}
	ty, tm, td := t.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	return ty == ny && tm == nm && td == nd
}

func ToDateInputValue(s string) string {
	return ToDateInputValueAt(s, time.Now())
}

// ToDateInputValueAt renders s as YYYY-MM-DD, or now's date when s is empty.
// Unparseable input yields "".
func ToDateInputValueAt(s string, now time.Time) string {
	if strings.TrimSpace(s) == "" {
		return now.Format(DateLayout)
	}
	t, ok := Parse(s, now.Location())
	if !ok {
		return ""
	}
	return t.In(now.Location()).Format(DateLayout)
}

func RelativeTime(s string) string {
	return RelativeTimeAt(s, time.Now())
}

// RelativeTimeAt buckets the floored day difference between s and now.
func RelativeTimeAt(s string, now time.Time) string {
	if strings.TrimSpace(s) == "" {
		return NoDueDate
	}
	t, ok := Parse(s, now.Location())
	if !ok {
		return InvalidDate
	}

	days := int(math.Floor(float64(t.Sub(now)) / float64(day)))
	switch {
	case days < 0:
		n := -days
		return fmt.Sprintf("%d %s ago", n, pluralDays(n))
	case days == 0:
		return "Today"
	case days == 1:
		return "Tomorrow"
	default:
		return fmt.Sprintf("In %d %s", days, pluralDays(days))
	}
}

func pluralDays(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}
