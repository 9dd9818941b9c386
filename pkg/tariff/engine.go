package tariff

import (
	"math"
	"slices"
	"time"

	"github.com/ecowatt/tourate/pkg/types"
)

const (
	// maxResample bounds how often a zero first uniform is redrawn before
	// falling back to minUniform.
	maxResample = 8
	minUniform  = 1e-12
)

// Quote is a computed rate along with the calendar facts that produced it.
type Quote struct {
	Category types.RateCategory `json:"category"`
	Rate     float64            `json:"rate"`
	Hour     int                `json:"hour"`
	Season   types.Season       `json:"season"`
	Weekend  bool               `json:"weekend"`
	BaseRate float64            `json:"baseRate"`
	// Fallback is set when no band covered the hour and FallbackRate was
	// returned unmodified.
	Fallback bool `json:"fallback,omitempty"`
}

// Engine computes stochastic time-of-use rates from a fixed set of Tables.
// It is safe for concurrent use when its RandomSource is.
type Engine struct {
	tables   Tables
	source   RandomSource
	location *time.Location
}

// NewEngine returns an engine over a private copy of tables. A nil source uses
// DefaultSource and a nil location uses the location of each timestamp
// passed in.
func NewEngine(tables Tables, source RandomSource, location *time.Location) *Engine {
	if source == nil {
		source = DefaultSource()
	}
	return &Engine{
		tables:   tables.Clone(),
		source:   source,
		location: location,
	}
}

// Tables returns a copy of the engine's tables.
func (e *Engine) Tables() Tables {
	return e.tables.Clone()
}

// Location returns the location hours and seasons are derived in, or nil.
func (e *Engine) Location() *time.Location {
	return e.location
}

// ComputeRate returns the rate in ₹/kWh for category at now, rounded to two
// decimals and never negative.
func (e *Engine) ComputeRate(category types.RateCategory, now time.Time) float64 {
	return e.Quote(category, now).Rate
}

// Quote computes the rate for category at now and reports the inputs used.
func (e *Engine) Quote(category types.RateCategory, now time.Time) Quote {
	if e.location != nil {
		now = now.In(e.location)
	}
	q := Quote{
		Category: category,
		Hour:     now.Hour(),
		Season:   types.SeasonOf(now),
		Weekend:  types.IsWeekend(now),
	}

	band, ok := e.findBand(category, q.Hour)
	if !ok {
		q.Fallback = true
		q.Rate = e.tables.FallbackRate
		return q
	}
	q.BaseRate = band.BaseRate

	rate := band.BaseRate + e.gaussian()*band.Variation
	rate *= e.tables.SeasonMultipliers[q.Season]
	if q.Weekend {
		rate *= e.tables.WeekendMultiplier
	} else {
		rate *= e.tables.WeekdayMultiplier
	}
	if slices.Contains(e.tables.PeakCategories, category) {
		switch {
		case slices.Contains(e.tables.PeakHours, q.Hour):
			rate *= e.tables.PeakMultiplier
		case slices.Contains(e.tables.OffPeakHours, q.Hour):
			rate *= e.tables.OffPeakMultiplier
		}
	}
	rate *= 1 + (e.source.Float64()*2-1)*e.tables.JitterFraction
	for _, s := range e.tables.Surcharges {
		rate *= s.Multiplier
	}

	q.Rate = roundRate(rate)
	return q
}

func (e *Engine) findBand(category types.RateCategory, hour int) (types.TimeBand, bool) {
	for _, b := range e.tables.Bands[category] {
		if b.Contains(hour) {
			return b, true
		}
	}
	return types.TimeBand{}, false
}

// gaussian draws a standard normal value with the Box-Muller transform.
func (e *Engine) gaussian() float64 {
	u1 := e.source.Float64()
	for i := 0; u1 <= 0 && i < maxResample; i++ {
		u1 = e.source.Float64()
	}
	if u1 <= 0 {
		u1 = minUniform
	} else if u1 > 1 {
		u1 = 1
	}
	u2 := e.source.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// roundRate rounds half away from zero to two decimals and floors the result
// at zero. NaN also maps to zero.
func roundRate(rate float64) float64 {
	rate = math.Round(rate*100) / 100
	if !(rate > 0) {
		return 0
	}
	return rate
}
