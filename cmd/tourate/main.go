package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"golang.org/x/sync/errgroup"

	"github.com/ecowatt/tourate/pkg/controller"
	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/mqtt"
	"github.com/ecowatt/tourate/pkg/notify"
	"github.com/ecowatt/tourate/pkg/scheduler"
	"github.com/ecowatt/tourate/pkg/server"
	"github.com/ecowatt/tourate/pkg/storage"
	"github.com/ecowatt/tourate/pkg/tariff"
)

func main() {
	// init packages
	s := storage.Configured()
	e := tariff.Configured()
	n := notify.Configured()
	p := mqtt.Configured()
	c := controller.Configured(e, s, s, n, p)

	// init server and the optional in-process schedule
	srv := server.Configured(c, e, s, n)
	sched := scheduler.Configured(func(ctx context.Context) {
		report := c.RunTick(ctx, srv.Categories(), time.Now())
		log.Ctx(ctx).InfoContext(ctx, "scheduled tick finished",
			slog.Int("sent", report.Notifications.Sent),
			slog.Int("failed", report.Notifications.Failed),
		)
	})

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromLLog(llog.GetLevel())
	if err != nil {
		panic(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()
	defer p.Close()

	// Run blocks until context is canceled or an error happens
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
