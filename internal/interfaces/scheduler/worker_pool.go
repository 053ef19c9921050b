package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	jobTracer          = otel.Tracer("bankledger/scheduler")
	jobMeter           = otel.Meter("bankledger/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs dropped due to full queue"))
)

// Job is a unit of work run by the pool.
type Job interface {
	Execute(ctx context.Context) error
	// Key identifies the entity the job works on, e.g. an account ID.
	Key() string
	Description() string
}

// PoolConfig sizes a WorkerPool.
type PoolConfig struct {
	WorkerCount int
	JobDelay    time.Duration // pause between jobs on one worker
	JobTimeout  time.Duration
	QueueSize   int
}

// WorkerPool runs submitted jobs on a fixed number of goroutines.
type WorkerPool struct {
	cfg    PoolConfig
	logger zerolog.Logger
	jobs   chan Job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool creates a new worker pool. Non-positive sizes fall back to a
// single worker, an unbuffered queue and a two minute job timeout.
func NewWorkerPool(cfg PoolConfig, logger zerolog.Logger) *WorkerPool {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		cfg:    cfg,
		logger: logger.With().Str("component", "worker_pool").Logger(),
		jobs:   make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	wp.logger.Info().Int("workers", wp.cfg.WorkerCount).Msg("starting worker pool")

	for i := 1; i <= wp.cfg.WorkerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	log := wp.logger.With().Int("worker_id", id).Logger()
	log.Debug().Msg("worker started")

	for {
		select {
		case <-wp.ctx.Done():
			log.Debug().Msg("worker shutting down")
			return

		case job, ok := <-wp.jobs:
			if !ok {
				log.Debug().Msg("job channel closed")
				return
			}

			wp.processJob(log, id, job)

			if wp.cfg.JobDelay > 0 {
				select {
				case <-time.After(wp.cfg.JobDelay):
				case <-wp.ctx.Done():
					return
				}
			}
		}
	}
}

func (wp *WorkerPool) processJob(log zerolog.Logger, workerID int, job Job) {
	log = log.With().Str("job", job.Description()).Str("job_key", job.Key()).Logger()

	ctx, cancel := context.WithTimeout(wp.ctx, wp.cfg.JobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.description", job.Description()),
			attribute.String("job.key", job.Key()),
		),
	)
	defer span.End()

	ctx = log.WithContext(ctx)
	start := time.Now()

	if err := job.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		jobDuration.Record(ctx, time.Since(start).Seconds())
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	jobDuration.Record(ctx, time.Since(start).Seconds())
	log.Info().Dur("elapsed", time.Since(start)).Msg("job completed")
}

// Submit queues a job without blocking. A full queue drops the job and
// returns ErrQueueFull.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(context.Background(), 1)
		wp.logger.Warn().Str("job_key", job.Key()).Msg("job queue full, dropping job")
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, job.Description())
	}
}

// SubmitBatch queues every job it can and returns how many were accepted.
func (wp *WorkerPool) SubmitBatch(jobs []Job) int {
	submitted := 0
	for _, job := range jobs {
		if err := wp.Submit(job); err != nil {
			wp.logger.Warn().Err(err).Str("job_key", job.Key()).Msg("failed to submit job")
			continue
		}
		submitted++
	}
	wp.logger.Info().Int("submitted", submitted).Int("total", len(jobs)).Msg("submitted jobs to worker pool")
	return submitted
}

// Shutdown stops accepting jobs and waits for queued ones to finish. If they
// do not finish within timeout, running jobs are cancelled.
func (wp *WorkerPool) Shutdown(timeout time.Duration) {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobs)
	wp.mu.Unlock()

	wp.logger.Info().Dur("timeout", timeout).Msg("worker pool shutting down")

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info().Msg("all workers finished")
	case <-time.After(timeout):
		wp.logger.Warn().Msg("shutdown timeout reached, cancelling running jobs")
		wp.cancel()
		<-done
	}
	wp.cancel()
}
