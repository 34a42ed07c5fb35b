package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/ln2t/watchdog/internal/model"
)

// Sweeper runs one dispatch sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (Summary, error)
}

type Supervisor struct {
	sweeper   Sweeper
	oneshot   bool
	scheduler gocron.Scheduler
	job       gocron.Job
	start     chan struct{}
	done      func(Summary, error)
}

func NewSupervisor(ctx context.Context, svc model.Service, sweeper Sweeper) (*Supervisor, error) {
	supervisor := &Supervisor{
		sweeper: sweeper,
		oneshot: svc.Mode != model.ServiceModeTimer,
		start:   make(chan struct{}, 1),
	}
	if !supervisor.oneshot {
		scheduler, job, err := newScheduler(ctx, svc.Schedule, supervisor.Start)
		if err != nil {
			return nil, fmt.Errorf("timer mode failed: %w", err)
		}
		supervisor.scheduler = scheduler
		supervisor.job = job
	}
	return supervisor, nil
}

// OnSweep registers a function called after each sweep on the loop
// goroutine.
func (s *Supervisor) OnSweep(fn func(Summary, error)) *Supervisor {
	s.done = fn
	return s
}

// Start asks for a sweep. It never blocks: a request made while another is
// pending is merged with it.
func (s *Supervisor) Start() {
	select {
	case s.start <- struct{}{}:
	default:
		slog.Debug("sweep already pending")
	}
}

// NextRun returns the next scheduled sweep. Manual mode has none.
func (s *Supervisor) NextRun() (time.Time, error) {
	if s.job == nil {
		return time.Time{}, errors.New("no schedule in manual mode")
	}
	return s.job.NextRun()
}

// Do runs the supervisor event loop.
//
// Oneshot (manual) mode runs a single sweep and returns its error. Timer mode
// starts the scheduler and sweeps on every activation until ctx is cancelled;
// sweep errors are only logged. Returns nil on cancellation.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor", "oneshot", s.oneshot)
	if s.oneshot {
		_, err := s.sweep(ctx)
		return err
	}

	s.scheduler.Start()
	defer func() {
		err := s.scheduler.Shutdown()
		if err != nil {
			slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		}
	}()
	s.logNextRun(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.start:
			if _, err := s.sweep(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "sweep failed", "error", err)
			}
			s.logNextRun(ctx)
		}
	}
}

func (s *Supervisor) sweep(ctx context.Context) (Summary, error) {
	sum, err := s.sweeper.Sweep(ctx)
	if s.done != nil {
		s.done(sum, err)
	}
	return sum, err
}

func (s *Supervisor) logNextRun(ctx context.Context) {
	next, err := s.NextRun()
	if err != nil {
		slog.DebugContext(ctx, "next run unknown", "error", err)
		return
	}
	slog.InfoContext(ctx, "next sweep scheduled", "at", next.Format(time.RFC3339))
}

func newScheduler(ctx context.Context, cfgp *model.Schedule, startFunc func()) (gocron.Scheduler, gocron.Job, error) {
	if cfgp == nil {
		return nil, nil, fmt.Errorf("service.schedule: %w", model.ErrNoSchedule)
	}
	cfg := *cfgp
	var def gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		if _, err := model.ParseCron(cfg.Cron); err != nil {
			return nil, nil, fmt.Errorf("parsing service.schedule.cron: %w", err)
		}
		def = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron)
	case cfg.Duration != "":
		d, err := model.ParseISODuration(cfg.Duration)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing service.schedule.duration: %w", err)
		}
		if d <= 0 {
			return nil, nil, fmt.Errorf("service.schedule.duration must be positive: %s", cfg.Duration)
		}
		slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
		def = gocron.DurationJob(d)
	default:
		return nil, nil, fmt.Errorf("service.schedule: %w", model.ErrNoSchedule)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	job, err := s.NewJob(
		def,
		gocron.NewTask(startFunc),
		gocron.WithName("sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, job, nil
}
