// Package worker runs the periodic background jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"lifescore_backend/internal/logger"

	"github.com/go-co-op/gocron/v2"
)

// Settler credits completed missions that were left uncredited.
type Settler interface {
	SettleUnsettled(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// Sweeper drops expired in-memory quota windows.
type Sweeper interface {
	Sweep(now time.Time) int
}

type Config struct {
	SettleInterval time.Duration
	SettleGrace    time.Duration
	SettleBatch    int
	SweepInterval  time.Duration
}

type Scheduler struct {
	sched   gocron.Scheduler
	settler Settler
	sweeper Sweeper
	cfg     Config
	ctx     context.Context
}

// New registers the jobs without starting them. sweeper may be nil.
func New(ctx context.Context, settler Settler, sweeper Sweeper, cfg Config) (*Scheduler, error) {
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = time.Minute
	}
	if cfg.SettleBatch <= 0 {
		cfg.SettleBatch = 100
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, settler: settler, sweeper: sweeper, cfg: cfg, ctx: ctx}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.SettleInterval),
		gocron.NewTask(s.settle),
		gocron.WithName("settlement-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("register settlement job: %w", err)
	}

	if sweeper != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.SweepInterval),
			gocron.NewTask(s.sweep),
			gocron.WithName("quota-sweep"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("register quota sweep job: %w", err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	logger.Info("scheduler started", "settle_every", s.cfg.SettleInterval, "sweep_every", s.cfg.SweepInterval)
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) settle() {
	n, err := s.settler.SettleUnsettled(s.ctx, s.cfg.SettleGrace, s.cfg.SettleBatch)
	if err != nil {
		logger.Error("settlement sweep failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("settlement sweep credited missions", "count", n)
	}
}

func (s *Scheduler) sweep() {
	if n := s.sweeper.Sweep(time.Now()); n > 0 {
		logger.Debug("quota windows swept", "count", n)
	}
}
