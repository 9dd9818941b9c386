package tariff

import (
	"path/filepath"
	"testing"

	"github.com/ecowatt/tourate/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTablesValid(t *testing.T) {
	tables := DefaultTables()
	require.NoError(t, tables.Validate())
	assert.Len(t, tables.Bands[types.RateCategoryDomestic], 6)
	assert.Equal(t, 5.0, tables.FallbackRate)
	require.Len(t, tables.Surcharges, 2)
	assert.Equal(t, 1.08, tables.Surcharges[0].Multiplier)
	assert.Equal(t, 1.05, tables.Surcharges[1].Multiplier)
}

func TestTablesValidate(t *testing.T) {
	t.Run("Gap", func(t *testing.T) {
		tables := DefaultTables()
		tables.Bands[types.RateCategoryIndustrial] = []types.TimeBand{
			{StartHour: 0, EndHour: 10, BaseRate: 7, Variation: 0.5},
			{StartHour: 12, EndHour: 24, BaseRate: 7, Variation: 0.5},
		}
		assert.ErrorContains(t, tables.Validate(), "gap between hour 10 and 12")
	})

	t.Run("Overlap", func(t *testing.T) {
		tables := DefaultTables()
		tables.Bands[types.RateCategoryIndustrial] = []types.TimeBand{
			{StartHour: 0, EndHour: 14, BaseRate: 7, Variation: 0.5},
			{StartHour: 12, EndHour: 24, BaseRate: 7, Variation: 0.5},
		}
		assert.ErrorContains(t, tables.Validate(), "overlaps")
	})

	t.Run("ShortDay", func(t *testing.T) {
		tables := DefaultTables()
		tables.Bands[types.RateCategoryIndustrial] = []types.TimeBand{
			{StartHour: 0, EndHour: 20, BaseRate: 7, Variation: 0.5},
		}
		assert.ErrorContains(t, tables.Validate(), "instead of 24")
	})

	t.Run("UnsortedIsFine", func(t *testing.T) {
		tables := DefaultTables()
		tables.Bands[types.RateCategoryIndustrial] = []types.TimeBand{
			{StartHour: 12, EndHour: 24, BaseRate: 8, Variation: 0.5},
			{StartHour: 0, EndHour: 12, BaseRate: 7, Variation: 0.5},
		}
		assert.NoError(t, tables.Validate())
	})

	t.Run("MissingSeason", func(t *testing.T) {
		tables := DefaultTables()
		delete(tables.SeasonMultipliers, types.SeasonMonsoon)
		assert.ErrorContains(t, tables.Validate(), "MONSOON")
	})

	t.Run("BadPeakHour", func(t *testing.T) {
		tables := DefaultTables()
		tables.PeakHours = append(tables.PeakHours, 24)
		assert.ErrorContains(t, tables.Validate(), "peak hour 24 out of range")
	})

	t.Run("Jitter", func(t *testing.T) {
		tables := DefaultTables()
		tables.JitterFraction = 1
		assert.ErrorContains(t, tables.Validate(), "jitter")
	})

	t.Run("Surcharge", func(t *testing.T) {
		tables := DefaultTables()
		tables.Surcharges = append(tables.Surcharges, Surcharge{Name: "bogus"})
		assert.ErrorContains(t, tables.Validate(), `surcharge "bogus"`)
	})
}

func TestLoadTables(t *testing.T) {
	tables, err := LoadTables(filepath.Join("testdata", "tables.yaml"))
	require.NoError(t, err)

	dom := tables.Bands[types.RateCategoryDomestic]
	require.Len(t, dom, 3)
	assert.Equal(t, types.TimeBand{StartHour: 6, EndHour: 18, BaseRate: 6.0, Variation: 0.4}, dom[1])

	// untouched categories and keys keep their defaults
	assert.Equal(t, DefaultTables().Bands[types.RateCategoryIndustrial], tables.Bands[types.RateCategoryIndustrial])
	assert.Equal(t, 1.2, tables.SeasonMultipliers[types.SeasonSummer])
	assert.Equal(t, 0.90, tables.SeasonMultipliers[types.SeasonWinter])
	assert.Equal(t, 1.10, tables.WeekdayMultiplier)
	assert.Equal(t, []Surcharge{{Name: "accumulated-deficit", Multiplier: 1.08}}, tables.Surcharges)

	_, err = LoadTables(filepath.Join("testdata", "gap.yaml"))
	assert.ErrorContains(t, err, "gap between hour 10 and 12")

	_, err = LoadTables(filepath.Join("testdata", "broken.yaml"))
	assert.ErrorContains(t, err, "failed to parse rate tables")

	_, err = LoadTables(filepath.Join("testdata", "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read rate tables")
}

func TestTablesClone(t *testing.T) {
	orig := DefaultTables()
	c := orig.Clone()
	c.Bands[types.RateCategoryDomestic][0].BaseRate = 99
	c.PeakHours[0] = 3
	c.SeasonMultipliers[types.SeasonSummer] = 2

	assert.Equal(t, 3.0, orig.Bands[types.RateCategoryDomestic][0].BaseRate)
	assert.Equal(t, 14, orig.PeakHours[0])
	assert.Equal(t, 1.15, orig.SeasonMultipliers[types.SeasonSummer])
}
