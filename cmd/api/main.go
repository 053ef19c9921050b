package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"bankledger/internal/interfaces/scheduler"
	"bankledger/internal/shared/config"
	"bankledger/internal/shared/logger"
	"bankledger/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		}, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Telemetry shutdown failed")
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	sched, err := startScheduler(deps, cfg, log)
	if err != nil {
		return err
	}

	srv := NewServer(SetupRoutes(deps, cfg, log), cfg)
	errCh := StartServer(srv, log)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			GracefulShutdown(srv, sched, 30*time.Second, log)
			return fmt.Errorf("http server: %w", err)
		}
	}

	GracefulShutdown(srv, sched, 30*time.Second, log)
	return nil
}

func startScheduler(deps *Dependencies, cfg *config.Config, log zerolog.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		log.Info().Msg("Scheduler is disabled")
		return nil, nil
	}

	sched, err := scheduler.New(scheduler.Config{
		Schedule: cfg.Scheduler.Schedule,
		Pool: scheduler.PoolConfig{
			WorkerCount: cfg.Scheduler.WorkerCount,
			JobDelay:    cfg.Scheduler.JobDelay,
			JobTimeout:  cfg.Scheduler.JobTimeout,
			QueueSize:   cfg.Scheduler.QueueSize,
		},
		RunOnStartup: cfg.Scheduler.RunOnStartup,
		JobProvider:  scheduler.BackfillJobProvider(deps.AccountService, deps.BackfillService, cfg.Ledger.BackfillCaller),
	}, log)
	if err != nil {
		return nil, err
	}

	sched.Start()
	log.Info().Str("schedule", cfg.Scheduler.Schedule).Msg("Scheduler started")
	return sched, nil
}
