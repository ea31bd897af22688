package table

import (
	"time"

	"github.com/rotisserie/eris"
)

// DayFormat is the canonical ISO date layout used throughout the table.
// Lexicographic order on formatted days equals chronological order.
const DayFormat = "2006-01-02"

// dayFirstLayouts are accepted when parsing scraped tables, where sources
// frequently publish day-first dates.
var dayFirstLayouts = []string{
	"2006-01-02",
	"02 Jan 2006",
	"2 Jan 2006",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDay parses s into a canonical ISO day string. Day-first layouts are
// tried after ISO, so unambiguous ISO input always wins.
func ParseDay(s string) (string, error) {
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DayFormat), nil
		}
	}
	return "", eris.Errorf("table: unparseable date %q", s)
}

// NextDay returns the day after the given ISO day.
func NextDay(day string) (string, error) {
	t, err := time.Parse(DayFormat, day)
	if err != nil {
		return "", eris.Wrapf(err, "table: parse day %q", day)
	}
	return t.AddDate(0, 0, 1).Format(DayFormat), nil
}

// Today returns the current UTC day in canonical form.
func Today() string {
	return time.Now().UTC().Format(DayFormat)
}

// DaysBetween returns every day from first to last inclusive. Returns nil
// when either bound is unparseable or last precedes first.
func DaysBetween(first, last string) []string {
	start, err := time.Parse(DayFormat, first)
	if err != nil {
		return nil
	}
	end, err := time.Parse(DayFormat, last)
	if err != nil || end.Before(start) {
		return nil
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DayFormat))
	}
	return days
}
