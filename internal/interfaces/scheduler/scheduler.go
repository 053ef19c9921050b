package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"bankledger/internal/domain/account"
)

// JobProvider builds the jobs for one scheduled run.
type JobProvider func(ctx context.Context) ([]Job, error)

// CandidateLister returns the accounts a scheduled backfill should cover.
type CandidateLister interface {
	ListBackfillCandidates(ctx context.Context) ([]*account.Account, error)
}

// BackfillJobProvider submits one BackfillJob per candidate account.
func BackfillJobProvider(accounts CandidateLister, backfiller Backfiller, caller string) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		candidates, err := accounts.ListBackfillCandidates(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list backfill candidates: %w", err)
		}

		jobs := make([]Job, 0, len(candidates))
		for _, acc := range candidates {
			jobs = append(jobs, NewBackfillJob(acc, caller, backfiller))
		}
		return jobs, nil
	}
}

// Config holds configuration for the scheduler.
type Config struct {
	Schedule     string // standard five-field cron spec
	Pool         PoolConfig
	RunOnStartup bool
	JobProvider  JobProvider
}

// Scheduler submits the provider's jobs to a worker pool on a cron schedule.
type Scheduler struct {
	cron         *cron.Cron
	pool         *WorkerPool
	provider     JobProvider
	runOnStartup bool
	logger       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// running guards against a slow run overlapping the next tick.
	running sync.Mutex
}

// New creates a new scheduler with the given configuration.
func New(cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.JobProvider == nil {
		return nil, fmt.Errorf("job provider is required")
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	s := &Scheduler{
		cron:         cron.New(cron.WithLogger(cronLogger{logger})),
		pool:         NewWorkerPool(cfg.Pool, logger),
		provider:     cfg.JobProvider,
		runOnStartup: cfg.RunOnStartup,
		logger:       logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(cfg.Schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	return s, nil
}

// Start launches the workers and the cron loop.
func (s *Scheduler) Start() {
	s.pool.Start()
	s.cron.Start()

	if s.runOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}

	entries := s.cron.Entries()
	if len(entries) > 0 {
		s.logger.Info().Time("next_run", entries[0].Next).Msg("scheduler started")
	}
}

// Trigger runs the provider once, outside the schedule. It returns the
// number of jobs accepted by the pool.
func (s *Scheduler) Trigger(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		return 0, fmt.Errorf("a scheduled run is already in progress")
	}
	defer s.running.Unlock()

	jobs, err := s.provider(ctx)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		s.logger.Info().Msg("no jobs to run")
		return 0, nil
	}
	return s.pool.SubmitBatch(jobs), nil
}

func (s *Scheduler) tick() {
	start := time.Now()
	n, err := s.Trigger(s.ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled run failed")
		return
	}
	s.logger.Info().Int("jobs", n).Dur("elapsed", time.Since(start)).Msg("scheduled run submitted")
}

// Stop halts the cron loop and drains the pool within timeout.
func (s *Scheduler) Stop(timeout time.Duration) {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.pool.Shutdown(timeout)
	s.logger.Info().Msg("scheduler stopped")
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
