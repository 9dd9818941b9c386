package types

import "time"

// Season is a tariff season derived from the calendar month.
type Season string

const (
	SeasonSummer  Season = "SUMMER"
	SeasonMonsoon Season = "MONSOON"
	SeasonWinter  Season = "WINTER"
)

// SeasonOf returns the season for the month of t in t's location.
// April through June is summer, July through October is monsoon and the rest
// of the year is winter.
func SeasonOf(t time.Time) Season {
	switch m := t.Month(); {
	case m >= time.April && m <= time.June:
		return SeasonSummer
	case m >= time.July && m <= time.October:
		return SeasonMonsoon
	default:
		return SeasonWinter
	}
}

// IsWeekend reports whether t falls on a Saturday or Sunday in t's location.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
