package tariff

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
)

// Configured registers the rate engine flags and returns an engine that is
// populated once flags are parsed.
func Configured() *Engine {
	tablesFile := lflag.String("rate-tables-file", "", "YAML file overriding the built-in rate tables")
	timezone := lflag.String("rate-timezone", "Asia/Kolkata", "IANA time zone hours and seasons are derived in")

	e := &Engine{}

	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("invalid rate-timezone %q: %v", *timezone, err))
		}
		tables := DefaultTables()
		if *tablesFile != "" {
			tables, err = LoadTables(*tablesFile)
			if err != nil {
				panic(fmt.Sprintf("rate tables failed to load: %v", err))
			}
		}
		*e = *NewEngine(tables, DefaultSource(), loc)
	})

	return e
}
