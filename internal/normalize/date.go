// Package normalize turns scraped free text into the values stored on a job
// record. Every function is total: bad input yields a zero value or, for
// posted dates, today.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var absoluteLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

var (
	compactAgeRe = regexp.MustCompile(`^(\d+)(m|h|d|w|mo|y)$`)
	postedOnRe   = regexp.MustCompile(`posted on\s+([a-z]+)\.?\s+(\d{1,2}),\s*(\d{4})`)
	numericRe    = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)
	hoursRe      = regexp.MustCompile(`\b(\d+)\s*(h|hr|hrs|hour|hours)\b`)
	minutesRe    = regexp.MustCompile(`\b(\d+)\s*(min|mins|minute|minutes)\b`)
	daysRe       = regexp.MustCompile(`\b(\d+)\s*(d|day|days)\b`)
	weeksRe      = regexp.MustCompile(`\b(\d+)\s*(w|wk|wks|week|weeks)\b`)
	monthsRe     = regexp.MustCompile(`\b(\d+)\s*(mo|mos|month|months)\b`)
	yearsRe      = regexp.MustCompile(`\b(\d+)\s*(y|yr|yrs|year|years)\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PostedDate parses absolute and relative posting dates ("2024-01-02",
// "01/02/2024", "Posted on Jan 2, 2024", "3d", "30d+", "5 hours ago",
// "yesterday", ...). Anything it cannot parse is today.
func PostedDate(raw string, now time.Time) time.Time {
	if parsed, ok := ParseDate(raw, now); ok {
		return parsed
	}
	return Day(now)
}

// ParseDate is PostedDate without the fallback.
func ParseDate(raw string, now time.Time) (time.Time, bool) {
	today := Day(now)
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range absoluteLayouts {
		if ts, err := time.ParseInLocation(layout, value, now.Location()); err == nil {
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
		}
	}

	t := strings.ToLower(strings.Join(strings.Fields(value), " "))

	if m := postedOnRe.FindStringSubmatch(t); m != nil {
		if month, ok := monthFromName(m[1]); ok {
			if d, ok := makeDate(atoi(m[3]), month, atoi(m[2]), now.Location()); ok {
				return d, true
			}
		}
	}

	if m := numericRe.FindStringSubmatch(t); m != nil {
		a, b, y := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if d, ok := makeDate(y, time.Month(a), b, now.Location()); ok {
			return d, true
		}
		if d, ok := makeDate(y, time.Month(b), a, now.Location()); ok {
			return d, true
		}
	}

	if ts, ok := RelativeAge(t, now); ok {
		return Day(ts), true
	}

	if m := hoursRe.FindStringSubmatch(t); m != nil {
		return today.AddDate(0, 0, -(atoi(m[1]) / 24)), true
	}
	if minutesRe.MatchString(t) {
		return today, true
	}
	if m := daysRe.FindStringSubmatch(t); m != nil {
		return today.AddDate(0, 0, -atoi(m[1])), true
	}
	if m := weeksRe.FindStringSubmatch(t); m != nil {
		return today.AddDate(0, 0, -7*atoi(m[1])), true
	}
	if m := monthsRe.FindStringSubmatch(t); m != nil {
		return today.AddDate(0, 0, -30*atoi(m[1])), true
	}
	if m := yearsRe.FindStringSubmatch(t); m != nil {
		return today.AddDate(0, 0, -365*atoi(m[1])), true
	}

	switch {
	case strings.Contains(t, "yesterday"):
		return today.AddDate(0, 0, -1), true
	case strings.Contains(t, "today"), strings.Contains(t, "just posted"), strings.Contains(t, "just now"):
		return today, true
	}
	return time.Time{}, false
}

// RelativeAge parses compact ages such as "45m", "7h", "2d", "3w", "1mo" and
// "2y" into the instant they describe. A month is 30 days and a year 365.
func RelativeAge(raw string, now time.Time) (time.Time, bool) {
	t := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	m := compactAgeRe.FindStringSubmatch(t)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	switch m[2] {
	case "m":
		return now.Add(-time.Duration(n) * time.Minute), true
	case "h":
		return now.Add(-time.Duration(n) * time.Hour), true
	case "d":
		return now.AddDate(0, 0, -n), true
	case "w":
		return now.AddDate(0, 0, -7*n), true
	case "mo":
		return now.AddDate(0, 0, -30*n), true
	case "y":
		return now.AddDate(0, 0, -365*n), true
	}
	return time.Time{}, false
}

func monthFromName(name string) (time.Month, bool) {
	if len(name) < 3 {
		return 0, false
	}
	month, ok := months[name[:3]]
	return month, ok
}

// makeDate rejects dates that time.Date would silently normalize.
func makeDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func atoi(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
