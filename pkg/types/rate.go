package types

import (
	"fmt"
	"strings"
	"time"
)

// RateCategory identifies a consumer category with its own rate schedule.
type RateCategory string

const (
	RateCategoryDomestic    RateCategory = "DOMESTIC"
	RateCategoryIndustrial  RateCategory = "INDUSTRIAL"
	RateCategoryNonDomestic RateCategory = "NON_DOMESTIC"
)

// AllRateCategories is the default order categories are processed in on each
// tick.
var AllRateCategories = []RateCategory{
	RateCategoryDomestic,
	RateCategoryIndustrial,
	RateCategoryNonDomestic,
}

// Valid reports whether c is one of the known categories.
func (c RateCategory) Valid() bool {
	switch c {
	case RateCategoryDomestic, RateCategoryIndustrial, RateCategoryNonDomestic:
		return true
	}
	return false
}

// ParseRateCategory parses a category name case-insensitively. Dashes are
// accepted in place of underscores so "non-domestic" works too.
func ParseRateCategory(s string) (RateCategory, error) {
	c := RateCategory(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	if !c.Valid() {
		return "", fmt.Errorf("unknown rate category: %q", s)
	}
	return c, nil
}

// ParseRateCategories parses a comma-delimited list of categories, dropping
// duplicates while keeping the first occurrence order.
func ParseRateCategories(s string) ([]RateCategory, error) {
	var cats []RateCategory
	seen := map[RateCategory]bool{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseRateCategory(part)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		cats = append(cats, c)
	}
	if len(cats) == 0 {
		return nil, fmt.Errorf("no rate categories in %q", s)
	}
	return cats, nil
}

// TimeBand is a half-open hour interval [StartHour, EndHour) with a base rate
// and the standard deviation of the noise applied to it.
type TimeBand struct {
	StartHour int     `json:"startHour" yaml:"startHour"`
	EndHour   int     `json:"endHour" yaml:"endHour"`
	BaseRate  float64 `json:"baseRate" yaml:"baseRate"`
	Variation float64 `json:"variation" yaml:"variation"`
}

// Contains reports whether hour falls inside the band.
func (b TimeBand) Contains(hour int) bool {
	return hour >= b.StartHour && hour < b.EndHour
}

// TimestampLayout is the fixed-width UTC layout rate records are persisted
// with. Fixed width keeps lexicographic and chronological order identical.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// TOURateRecord is one computed rate for one category at one instant.
type TOURateRecord struct {
	ID        string       `json:"id,omitempty"`
	Category  RateCategory `json:"category"`
	Rate      float64      `json:"rate"`
	Timestamp time.Time    `json:"timestamp"`
}

// FormatTimestamp returns the record timestamp in TimestampLayout.
func (r TOURateRecord) FormatTimestamp() string {
	return r.Timestamp.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a timestamp written with TimestampLayout. RFC3339 is
// accepted as well for records written by other tools.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
