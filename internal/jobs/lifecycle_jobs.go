package jobs

import (
	"context"

	"pickup-backend/internal/logger"
)

const (
	JobAdvanceLifecycle = "AdvanceLifecycle"
	JobArchiveFinished  = "ArchiveFinished"
)

// AdvanceLifecycle moves activities through scheduled, locked, in progress
// and completed as their start and end times pass.
func (jr *JobRunner) AdvanceLifecycle() error {
	return jr.runWithRecovery(JobAdvanceLifecycle, func(ctx context.Context) error {
		changed, err := jr.activities.AdvanceLifecycle(ctx, jr.clock())
		if changed > 0 {
			logger.Info("Advanced activity statuses", "count", changed)
		}
		return err
	})
}

// ArchiveFinished archives activities that ended more than the grace period ago.
func (jr *JobRunner) ArchiveFinished() error {
	return jr.runWithRecovery(JobArchiveFinished, func(ctx context.Context) error {
		archived, err := jr.activities.ArchiveFinished(ctx, jr.clock())
		if archived > 0 {
			logger.Info("Archived finished activities", "count", archived)
		}
		return err
	})
}
