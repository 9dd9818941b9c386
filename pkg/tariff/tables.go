package tariff

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/ecowatt/tourate/pkg/types"
	"gopkg.in/yaml.v3"
)

// Surcharge is a regulatory multiplier applied after every other factor.
type Surcharge struct {
	Name       string  `json:"name" yaml:"name"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// Tables holds every constant the engine uses. The zero value is not usable,
// start from DefaultTables.
type Tables struct {
	Bands             map[types.RateCategory][]types.TimeBand `json:"bands" yaml:"bands"`
	SeasonMultipliers map[types.Season]float64               `json:"seasonMultipliers" yaml:"seasonMultipliers"`
	WeekdayMultiplier float64                                `json:"weekdayMultiplier" yaml:"weekdayMultiplier"`
	WeekendMultiplier float64                                `json:"weekendMultiplier" yaml:"weekendMultiplier"`

	// PeakCategories are subject to the peak and off-peak hour adjustments.
	PeakCategories    []types.RateCategory `json:"peakCategories" yaml:"peakCategories"`
	PeakHours         []int                `json:"peakHours" yaml:"peakHours"`
	PeakMultiplier    float64              `json:"peakMultiplier" yaml:"peakMultiplier"`
	OffPeakHours      []int                `json:"offPeakHours" yaml:"offPeakHours"`
	OffPeakMultiplier float64              `json:"offPeakMultiplier" yaml:"offPeakMultiplier"`

	// JitterFraction bounds the uniform jitter, 0.01 means ±1%.
	JitterFraction float64     `json:"jitterFraction" yaml:"jitterFraction"`
	Surcharges     []Surcharge `json:"surcharges" yaml:"surcharges"`

	// FallbackRate is returned as-is when no band covers the hour.
	FallbackRate float64 `json:"fallbackRate" yaml:"fallbackRate"`
}

// DefaultTables returns the published rate schedule.
func DefaultTables() Tables {
	return Tables{
		Bands: map[types.RateCategory][]types.TimeBand{
			types.RateCategoryDomestic: {
				{StartHour: 0, EndHour: 4, BaseRate: 3.0, Variation: 0.3},
				{StartHour: 4, EndHour: 8, BaseRate: 4.5, Variation: 0.4},
				{StartHour: 8, EndHour: 12, BaseRate: 6.5, Variation: 0.5},
				{StartHour: 12, EndHour: 16, BaseRate: 7.0, Variation: 0.6},
				{StartHour: 16, EndHour: 20, BaseRate: 8.0, Variation: 0.7},
				{StartHour: 20, EndHour: 24, BaseRate: 5.2, Variation: 0.4},
			},
			types.RateCategoryIndustrial: {
				{StartHour: 0, EndHour: 24, BaseRate: 7.75, Variation: 0.5},
			},
			types.RateCategoryNonDomestic: {
				{StartHour: 0, EndHour: 24, BaseRate: 8.5, Variation: 0.6},
			},
		},
		SeasonMultipliers: map[types.Season]float64{
			types.SeasonSummer:  1.15,
			types.SeasonMonsoon: 1.00,
			types.SeasonWinter:  0.90,
		},
		WeekdayMultiplier: 1.10,
		WeekendMultiplier: 0.95,
		PeakCategories:    []types.RateCategory{types.RateCategoryIndustrial, types.RateCategoryNonDomestic},
		PeakHours:         []int{14, 15, 16, 22, 23, 0},
		PeakMultiplier:    1.2,
		OffPeakHours:      []int{4, 5, 6, 7, 8, 9},
		OffPeakMultiplier: 0.8,
		JitterFraction:    0.01,
		Surcharges: []Surcharge{
			{Name: "accumulated-deficit", Multiplier: 1.08},
			{Name: "pension-trust", Multiplier: 1.05},
		},
		FallbackRate: 5.0,
	}
}

// Clone returns a deep copy of t.
func (t Tables) Clone() Tables {
	c := t
	c.Bands = make(map[types.RateCategory][]types.TimeBand, len(t.Bands))
	for cat, bands := range t.Bands {
		c.Bands[cat] = slices.Clone(bands)
	}
	c.SeasonMultipliers = make(map[types.Season]float64, len(t.SeasonMultipliers))
	for s, m := range t.SeasonMultipliers {
		c.SeasonMultipliers[s] = m
	}
	c.PeakCategories = slices.Clone(t.PeakCategories)
	c.PeakHours = slices.Clone(t.PeakHours)
	c.OffPeakHours = slices.Clone(t.OffPeakHours)
	c.Surcharges = slices.Clone(t.Surcharges)
	return c
}

// Validate checks that every category's bands partition [0,24) and that the
// multipliers are usable.
func (t Tables) Validate() error {
	var errs []error
	if len(t.Bands) == 0 {
		errs = append(errs, errors.New("no rate bands configured"))
	}
	for cat, bands := range t.Bands {
		if !cat.Valid() {
			errs = append(errs, fmt.Errorf("bands for unknown category %q", cat))
			continue
		}
		if err := validateBands(bands); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cat, err))
		}
	}
	for _, s := range []types.Season{types.SeasonSummer, types.SeasonMonsoon, types.SeasonWinter} {
		if m, ok := t.SeasonMultipliers[s]; !ok || m <= 0 {
			errs = append(errs, fmt.Errorf("season multiplier for %s must be positive", s))
		}
	}
	if t.WeekdayMultiplier <= 0 || t.WeekendMultiplier <= 0 {
		errs = append(errs, errors.New("demand multipliers must be positive"))
	}
	if t.PeakMultiplier <= 0 || t.OffPeakMultiplier <= 0 {
		errs = append(errs, errors.New("peak multipliers must be positive"))
	}
	for _, h := range slices.Concat(t.PeakHours, t.OffPeakHours) {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Errorf("peak hour %d out of range", h))
		}
	}
	for _, cat := range t.PeakCategories {
		if !cat.Valid() {
			errs = append(errs, fmt.Errorf("unknown peak category %q", cat))
		}
	}
	if t.JitterFraction < 0 || t.JitterFraction >= 1 {
		errs = append(errs, fmt.Errorf("jitter fraction %v must be in [0,1)", t.JitterFraction))
	}
	for _, s := range t.Surcharges {
		if s.Multiplier <= 0 {
			errs = append(errs, fmt.Errorf("surcharge %q multiplier must be positive", s.Name))
		}
	}
	if t.FallbackRate <= 0 {
		errs = append(errs, errors.New("fallback rate must be positive"))
	}
	return errors.Join(errs...)
}

func validateBands(bands []types.TimeBand) error {
	if len(bands) == 0 {
		return errors.New("no bands")
	}
	sorted := slices.Clone(bands)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartHour < sorted[j].StartHour
	})
	next := 0
	for _, b := range sorted {
		if b.StartHour != next {
			if b.StartHour < next {
				return fmt.Errorf("band %d-%d overlaps previous band", b.StartHour, b.EndHour)
			}
			return fmt.Errorf("gap between hour %d and %d", next, b.StartHour)
		}
		if b.EndHour <= b.StartHour {
			return fmt.Errorf("band %d-%d is empty", b.StartHour, b.EndHour)
		}
		if b.BaseRate <= 0 {
			return fmt.Errorf("band %d-%d base rate must be positive", b.StartHour, b.EndHour)
		}
		if b.Variation < 0 {
			return fmt.Errorf("band %d-%d variation must not be negative", b.StartHour, b.EndHour)
		}
		next = b.EndHour
	}
	if next != 24 {
		return fmt.Errorf("bands end at hour %d instead of 24", next)
	}
	return nil
}

// LoadTables reads a YAML file and overlays it on DefaultTables. Keys absent
// from the file keep their default value; a category listed under bands
// replaces that category's bands entirely.
func LoadTables(path string) (Tables, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read rate tables: %w", err)
	}
	t := DefaultTables()
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Tables{}, fmt.Errorf("failed to parse rate tables %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, fmt.Errorf("invalid rate tables %s: %w", path, err)
	}
	return t, nil
}
