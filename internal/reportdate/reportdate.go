// Package reportdate reads report and period-end dates out of free text.
package reportdate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var months = map[string]time.Month{
	"january": time.January, "janvier": time.January, "januar": time.January, "jänner": time.January,
	"february": time.February, "février": time.February, "fevrier": time.February, "februar": time.February,
	"march": time.March, "mars": time.March, "märz": time.March, "maerz": time.March,
	"april": time.April, "avril": time.April,
	"may": time.May, "mai": time.May,
	"june": time.June, "juin": time.June, "juni": time.June,
	"july": time.July, "juillet": time.July, "juli": time.July,
	"august": time.August, "août": time.August, "aout": time.August,
	"september": time.September, "septembre": time.September,
	"october": time.October, "octobre": time.October, "oktober": time.October,
	"november": time.November, "novembre": time.November,
	"december": time.December, "décembre": time.December, "decembre": time.December, "dezember": time.December,
}

var (
	monthAlt = func() string {
		names := make([]string, 0, len(months))
		for name := range months {
			names = append(names, regexp.QuoteMeta(name))
		}
		// Longest first so "juillet" wins over "juli".
		sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
		return strings.Join(names, "|")
	}()

	dayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th|er)?\.?\s+(` + monthAlt + `)\s+(\d{4})\b`)
	monthDayYear = regexp.MustCompile(`(?i)\b(` + monthAlt + `)\s+(\d{1,2}),?\s+(\d{4})\b`)
	dottedDate   = regexp.MustCompile(`\b(\d{1,2})\.\s*(\d{1,2})\.\s*(\d{4})\b`)
	isoDate      = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDate    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	bareYear     = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
)

// Extract finds a report date in free text (titles, cover pages). It
// understands English, French, and German month names, DD.MM.YYYY,
// YYYY-MM-DD, and DD/MM/YYYY (falling back to MM/DD/YYYY). A bare year maps
// to the target's month and day, or to 31 December.
func Extract(text string, target time.Time) (time.Time, bool) {
	if d, ok := ExtractExact(text); ok {
		return d, true
	}
	if m := bareYear.FindStringSubmatch(text); m != nil {
		year := atoi(m[1])
		if !target.IsZero() {
			return time.Date(year, target.Month(), target.Day(), 0, 0, 0, 0, time.UTC), true
		}
		return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// ExtractExact is Extract without the bare-year fallback.
func ExtractExact(text string) (time.Time, bool) {
	if m := dayMonthYear.FindStringSubmatch(text); m != nil {
		if d, ok := mkDate(m[3], monthNum(m[2]), m[1]); ok {
			return d, true
		}
	}
	if m := monthDayYear.FindStringSubmatch(text); m != nil {
		if d, ok := mkDate(m[3], monthNum(m[1]), m[2]); ok {
			return d, true
		}
	}
	if m := dottedDate.FindStringSubmatch(text); m != nil {
		if d, ok := mkDate(m[3], atoi(m[2]), m[1]); ok {
			return d, true
		}
	}
	if m := isoDate.FindStringSubmatch(text); m != nil {
		if d, ok := mkDate(m[1], atoi(m[2]), m[3]); ok {
			return d, true
		}
	}
	if m := slashDate.FindStringSubmatch(text); m != nil {
		if d, ok := mkDate(m[3], atoi(m[2]), m[1]); ok {
			return d, true
		}
		if d, ok := mkDate(m[3], atoi(m[1]), m[2]); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// ParseISO reads "2024-06-30" or an RFC 3339 timestamp.
func ParseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func mkDate(year string, month int, day string) (time.Time, bool) {
	y, d := atoi(year), atoi(day)
	if month < 1 || month > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(month), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 31 June to 1 July; reject it instead.
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func monthNum(name string) int {
	return int(months[strings.ToLower(name)])
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

