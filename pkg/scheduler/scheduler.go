package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/robfig/cron/v3"

	"github.com/ecowatt/tourate/pkg/log"
)

// Job is invoked on every firing with a context bounded by the job timeout.
type Job func(ctx context.Context)

// Scheduler fires a Job on a cron schedule inside the process. It is an
// alternative to an external scheduler calling the tick endpoint.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	location *time.Location
	timeout  time.Duration
	job      Job
}

// New parses spec with the standard five field parser. Descriptors like
// "@hourly" and a "CRON_TZ=" prefix are accepted.
func New(spec string, location *time.Location, timeout time.Duration, job Job) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	if location == nil {
		location = time.Local
	}
	return &Scheduler{
		spec:     spec,
		schedule: schedule,
		location: location,
		timeout:  timeout,
		job:      job,
	}, nil
}

// Enabled reports whether a schedule is configured.
func (s *Scheduler) Enabled() bool {
	return s.schedule != nil
}

// Next returns the first firing strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// Run fires the job until ctx is done, then waits for a running job to
// return. A disabled Scheduler just waits for ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.Enabled() {
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithLocation(s.location), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		jobCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		log.Ctx(jobCtx).InfoContext(jobCtx, "scheduled tick firing", slog.String("schedule", s.spec))
		s.job(jobCtx)
	}))

	log.Ctx(ctx).InfoContext(ctx, "starting scheduler", slog.String("schedule", s.spec), slog.Time("next", s.Next(time.Now())))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Ctx(ctx).InfoContext(ctx, "scheduler stopped")
	return nil
}

// Configured registers the scheduler flags. The schedule is empty by default,
// which leaves ticking to an external caller of the tick endpoint.
func Configured(job Job) *Scheduler {
	spec := lflag.String("cron-schedule", "", `Cron schedule for in-process ticks (e.g. "CRON_TZ=Asia/Kolkata 0 * * * *"), empty disables`)
	timeout := lflag.Duration("cron-tick-timeout", 10*time.Minute, "Deadline for a scheduled tick")

	s := &Scheduler{}

	lflag.Do(func() {
		if *spec == "" {
			return
		}
		configured, err := New(*spec, nil, *timeout, job)
		if err != nil {
			panic(err.Error())
		}
		*s = *configured
	})

	return s
}
