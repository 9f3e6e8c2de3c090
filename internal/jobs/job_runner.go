package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pickup-backend/internal/config"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/metrics"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 5 * time.Minute

// Lifecycle is the part of the activity service the scheduled jobs drive.
type Lifecycle interface {
	AdvanceLifecycle(ctx context.Context, now time.Time) (int, error)
	ArchiveFinished(ctx context.Context, now time.Time) (int, error)
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	activities Lifecycle
	config     *config.Config
	clock      func() time.Time
	timeout    time.Duration
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(activities Lifecycle, cfg *config.Config) *JobRunner {
	return &JobRunner{
		activities: activities,
		config:     cfg,
		clock:      time.Now,
		timeout:    DefaultJobTimeout,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery. A panic is
// reported as an error so run-once callers can exit non-zero.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	log := logger.WithComponent("jobs").With("job", jobName)
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.JobRuns.WithLabelValues(jobName, outcome).Inc()
	}()

	log.Info("Starting job")
	if err := jobFunc(ctx); err != nil {
		log.Error("Job failed", "error", err, "duration_ms", time.Since(started).Milliseconds())
		return err
	}
	log.Info("Job completed", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

// RunAll runs every lifecycle job once, in dependency order.
func (jr *JobRunner) RunAll() error {
	return errors.Join(jr.AdvanceLifecycle(), jr.ArchiveFinished())
}
