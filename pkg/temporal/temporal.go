// Package temporal extracts a date range from free-text queries. A parseable
// expression is what gates the temporal-graph retrieval strategy.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/memora-ai/memora/pkg/types"
)

var (
	monthPattern  = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\b(?:\s+(\d{4}))?`)
	yearPattern   = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	agoPattern    = regexp.MustCompile(`\b(\d+)\s+(day|week|month|year)s?\s+ago\b`)
	seasonPattern = regexp.MustCompile(`\b(last\s+)?(spring|summer|autumn|fall|winter)\b`)
)

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// Parse scans the query for a temporal expression and returns the event-time
// range it denotes, relative to now. The second return is false when the
// query carries no recognizable expression; that is a normal outcome, not an
// error. When several expressions appear the earliest match in the text wins.
func Parse(query string, now time.Time) (*types.TimeRange, bool) {
	q := strings.ToLower(query)
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	type match struct {
		pos int
		r   types.TimeRange
	}
	var best *match
	consider := func(pos int, r types.TimeRange) {
		if pos < 0 {
			return
		}
		if best == nil || pos < best.pos {
			best = &match{pos: pos, r: r}
		}
	}

	consider(strings.Index(q, "yesterday"), dayRange(today.AddDate(0, 0, -1)))
	consider(strings.Index(q, "today"), dayRange(today))

	consider(strings.Index(q, "last week"), types.TimeRange{
		Start: today.AddDate(0, 0, -7),
		End:   endOfDay(today.AddDate(0, 0, -1)),
	})
	consider(strings.Index(q, "last month"), monthRange(today.AddDate(0, -1, 0)))
	consider(strings.Index(q, "last year"), yearRange(today.Year() - 1))
	consider(strings.Index(q, "this week"), types.TimeRange{
		Start: today.AddDate(0, 0, -int(today.Weekday())),
		End:   endOfDay(today),
	})
	consider(strings.Index(q, "this month"), monthRange(today))
	consider(strings.Index(q, "this year"), yearRange(today.Year()))

	if loc := agoPattern.FindStringSubmatchIndex(q); loc != nil {
		m := agoPattern.FindStringSubmatch(q)
		n, _ := strconv.Atoi(m[1])
		var day time.Time
		switch m[2] {
		case "day":
			day = today.AddDate(0, 0, -n)
		case "week":
			day = today.AddDate(0, 0, -7*n)
		case "month":
			day = today.AddDate(0, -n, 0)
		case "year":
			day = today.AddDate(-n, 0, 0)
		}
		consider(loc[0], dayRange(day))
	}

	if loc := seasonPattern.FindStringSubmatchIndex(q); loc != nil {
		m := seasonPattern.FindStringSubmatch(q)
		consider(loc[0], seasonRange(m[2], m[1] != "", today))
	}

	if loc := monthPattern.FindStringSubmatchIndex(q); loc != nil {
		m := monthPattern.FindStringSubmatch(q)
		month := months[m[1]]
		year := today.Year()
		if m[2] != "" {
			year, _ = strconv.Atoi(m[2])
		} else if month > today.Month() {
			// A bare future month means the most recent past occurrence.
			year--
		}
		consider(loc[0], monthRange(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)))
	}

	if loc := yearPattern.FindStringIndex(q); loc != nil {
		y, _ := strconv.Atoi(q[loc[0]:loc[1]])
		consider(loc[0], yearRange(y))
	}

	if best == nil {
		return nil, false
	}
	r := best.r
	return &r, true
}

func dayRange(day time.Time) types.TimeRange {
	return types.TimeRange{Start: day, End: endOfDay(day)}
}

func monthRange(t time.Time) types.TimeRange {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return types.TimeRange{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

func yearRange(year int) types.TimeRange {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return types.TimeRange{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Nanosecond)}
}

// seasonRange maps a northern-hemisphere season to its months. "last"
// forces the previous occurrence; a bare season means the most recent one,
// current season included.
func seasonRange(season string, last bool, today time.Time) types.TimeRange {
	var startMonth time.Month
	switch season {
	case "spring":
		startMonth = time.March
	case "summer":
		startMonth = time.June
	case "autumn", "fall":
		startMonth = time.September
	case "winter":
		startMonth = time.December
	}
	year := today.Year()
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, 0).Add(-time.Nanosecond)
	if start.After(today) || (last && !end.Before(today)) {
		start = start.AddDate(-1, 0, 0)
		end = start.AddDate(0, 3, 0).Add(-time.Nanosecond)
	}
	return types.TimeRange{Start: start, End: end}
}

func endOfDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
