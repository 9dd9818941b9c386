package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/storage"
	"github.com/ecowatt/tourate/pkg/tariff"
	"github.com/ecowatt/tourate/pkg/types"
)

type rateComputer interface {
	ComputeRate(category types.RateCategory, now time.Time) float64
}

type seedOptions struct {
	days        int
	categories  []types.RateCategory
	subscribers []string
	end         time.Time
}

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	e := tariff.Configured()

	days := 7
	lflag.JSON(&days, "seed-days", days, "Number of days of hourly rate history to generate")
	categories := lflag.String("seed-categories", "DOMESTIC,INDUSTRIAL,NON_DOMESTIC", "Comma-delimited categories to generate history for")
	subscribers := lflag.String("seed-subscribers", "", "Comma-delimited emails to subscribe")
	lflag.Configure()

	ctx := context.Background()
	cats, err := types.ParseRateCategories(*categories)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid categories", slog.Any("error", err))
		if cerr := s.Close(); cerr != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", cerr)
		}
		os.Exit(1)
	}

	opts := seedOptions{
		days:        days,
		categories:  cats,
		subscribers: strings.Split(*subscribers, ","),
		end:         time.Now().Truncate(time.Hour),
	}
	if err := run(ctx, s, e, opts); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "seeding complete")
}

// run writes the history and subscribers, then closes db on every path.
func run(ctx context.Context, db storage.Database, e rateComputer, opts seedOptions) error {
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", cerr)
		}
	}()

	log.Ctx(ctx).InfoContext(ctx, "seeding rate history", slog.Int("days", opts.days))

	start := opts.end.Add(-time.Duration(opts.days) * 24 * time.Hour)
	var count int
	for t := start; t.Before(opts.end); t = t.Add(time.Hour) {
		for _, c := range opts.categories {
			record := types.TOURateRecord{
				Category:  c,
				Rate:      e.ComputeRate(c, t),
				Timestamp: t.UTC(),
			}
			if _, err := db.AppendRate(ctx, record); err != nil {
				return fmt.Errorf("failed to append %s rate at %s: %w", c, t.UTC().Format(time.RFC3339), err)
			}
			count++
		}
	}
	log.Ctx(ctx).InfoContext(ctx, "seeded rates", slog.Int("count", count))

	for _, email := range opts.subscribers {
		if email = strings.TrimSpace(email); email == "" {
			continue
		}
		r, created, err := db.AddEmailSubscriber(ctx, email)
		if err != nil {
			return fmt.Errorf("failed to add subscriber %q: %w", email, err)
		}
		log.Ctx(ctx).InfoContext(ctx, "subscriber seeded", slog.String("id", r.ID), slog.Bool("created", created))
	}
	return nil
}
