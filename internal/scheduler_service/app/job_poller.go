package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/database"
)

var (
	jobsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "jobs_processed_total",
			Help:      "Total number of scheduled message jobs processed by the scheduler.",
		},
		[]string{"status"},
	)
	jobProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scheduler",
			Name:      "job_processing_duration_seconds",
			Help:      "Duration of scheduled job dispatch.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

// QueuedJobDispatcher triggers a queued job through the regular dispatch path.
type QueuedJobDispatcher interface {
	DispatchQueuedJob(ctx context.Context, jobID string) error
}

// PollerConfig holds configuration specific to the JobPoller.
type PollerConfig struct {
	PollingInterval time.Duration
	JobBatchSize    int
}

// JobPoller claims message jobs whose schedule has passed and dispatches them.
type JobPoller struct {
	db         database.Querier
	jobs       coredomain.JobRepository
	dispatcher QueuedJobDispatcher
	logger     *slog.Logger
	config     PollerConfig
	now        func() time.Time
}

func NewJobPoller(
	db database.Querier,
	jobs coredomain.JobRepository,
	dispatcher QueuedJobDispatcher,
	logger *slog.Logger,
	cfg PollerConfig,
) *JobPoller {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 30 * time.Second
	}
	if cfg.JobBatchSize <= 0 {
		cfg.JobBatchSize = 20
	}
	return &JobPoller{
		db:         db,
		jobs:       jobs,
		dispatcher: dispatcher,
		logger:     logger.With("component", "job_poller"),
		config:     cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// PollAndProcessJobs acquires due jobs and dispatches them one by one.
// A failed dispatch is recorded on the job itself, so only acquisition errors are returned.
func (p *JobPoller) PollAndProcessJobs(ctx context.Context) (processed int, err error) {
	due, err := p.jobs.AcquireDueScheduled(ctx, p.db, p.now(), p.config.JobBatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to acquire due jobs", "error", err)
		return 0, fmt.Errorf("failed to acquire due jobs: %w", err)
	}
	if len(due) == 0 {
		p.logger.DebugContext(ctx, "No due jobs in this poll cycle")
		return 0, nil
	}
	p.logger.InfoContext(ctx, "Acquired jobs for processing", "count", len(due))

	for _, job := range due {
		if ctx.Err() != nil {
			return processed, nil
		}
		processed++
		start := time.Now()
		status := "success"
		if err := p.dispatcher.DispatchQueuedJob(ctx, job.ID); err != nil {
			status = string(coredomain.KindOf(err))
			p.logger.ErrorContext(ctx, "Scheduled job dispatch failed", "error", err, "job_id", job.ID, "message_id", job.MessageID)
		} else {
			p.logger.InfoContext(ctx, "Scheduled job dispatched", "job_id", job.ID, "message_id", job.MessageID)
		}
		jobProcessingDurationHist.WithLabelValues(status).Observe(time.Since(start).Seconds())
		jobsProcessedCounter.WithLabelValues(status).Inc()
	}
	return processed, nil
}

// Run polls on every tick until ctx is cancelled or acquisition fails.
func (p *JobPoller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Starting scheduler job poller", "polling_interval", p.config.PollingInterval, "batch_size", p.config.JobBatchSize)
	ticker := time.NewTicker(p.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			processed, err := p.PollAndProcessJobs(ctx)
			if err != nil {
				return err
			}
			if processed > 0 {
				p.logger.InfoContext(ctx, "Job poller processed jobs in this tick", "count", processed)
			}
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Job poller stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}
