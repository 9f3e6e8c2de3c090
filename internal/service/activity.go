package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/metrics"
	"pickup-backend/internal/notifier"
	"pickup-backend/internal/policy"
	"pickup-backend/internal/repository"
)

type activityService struct {
	activities  repository.ActivityRepository
	memberships repository.MembershipRepository
	gate        *ActivityGate
	hub         *notifier.Hub
	rules       policy.LockPolicy
	opts        Options
}

// NewActivityService builds the activity editing flow. It must share gate and
// hub with the Coordinator so both writers are serialized per activity.
func NewActivityService(
	activities repository.ActivityRepository,
	memberships repository.MembershipRepository,
	gate *ActivityGate,
	hub *notifier.Hub,
	rules policy.LockPolicy,
	opts Options,
) ActivityService {
	return &activityService{
		activities:  activities,
		memberships: memberships,
		gate:        gate,
		hub:         hub,
		rules:       rules,
		opts:        opts.withDefaults(),
	}
}

func (s *activityService) CreateActivity(ctx context.Context, creatorID int32, a *domain.Activity) (*domain.Activity, error) {
	logger.EnterMethod("activityService.CreateActivity", "creatorID", creatorID, "sport", a.Sport)

	a.ID = 0
	a.CreatorID = creatorID
	a.Status = domain.ActivityStatusScheduled
	a.ConfirmedCount = 0
	a.WaitlistCount = 0
	a.DeletedAt = nil
	a.ArchivedAt = nil
	if a.DurationMinutes == 0 {
		a.DurationMinutes = s.opts.DefaultDurationMinutes
	}
	if err := a.Validate(s.opts.Clock()); err != nil {
		logger.ExitMethodWithError("activityService.CreateActivity", err, "creatorID", creatorID)
		return nil, err
	}
	if err := s.activities.Create(ctx, a); err != nil {
		logger.ExitMethodWithError("activityService.CreateActivity", err, "creatorID", creatorID)
		return nil, err
	}

	logger.ExitMethod("activityService.CreateActivity", "activityID", a.ID)
	return a, nil
}

func (s *activityService) GetActivity(ctx context.Context, id int32) (*domain.Activity, error) {
	return s.load(ctx, id)
}

func (s *activityService) UpdateActivity(ctx context.Context, creatorID, id int32, patch domain.ActivityPatch) (*domain.Activity, error) {
	logger.EnterMethod("activityService.UpdateActivity", "activityID", id, "creatorID", creatorID)

	a, err := s.apply(ctx, "update_activity", id, func(a *domain.Activity, now time.Time) (domain.EventKind, error) {
		if a.CreatorID != creatorID {
			return "", domain.ErrNotActivityCreator
		}
		if patch.Empty() {
			return "", domain.Invalid("no fields to update")
		}
		if err := s.rules.Evaluate(a, now).Err(domain.ErrWithinLockWindow); err != nil {
			return "", err
		}
		patch.Apply(a)
		if err := a.Validate(now); err != nil {
			return "", err
		}
		// The new schedule must not close the window either.
		if err := s.rules.Evaluate(a, now).Err(domain.ErrWithinLockWindow); err != nil {
			return "", err
		}
		return domain.EventActivityUpdated, nil
	})
	if err != nil {
		logger.ExitMethodWithError("activityService.UpdateActivity", err, "activityID", id)
		return nil, err
	}

	logger.ExitMethod("activityService.UpdateActivity", "activityID", id, "version", a.Version)
	return a, nil
}

// CancelActivity is allowed until the start time, lock window included.
func (s *activityService) CancelActivity(ctx context.Context, creatorID, id int32) (*domain.Activity, error) {
	logger.EnterMethod("activityService.CancelActivity", "activityID", id, "creatorID", creatorID)

	a, err := s.apply(ctx, "cancel_activity", id, func(a *domain.Activity, now time.Time) (domain.EventKind, error) {
		if a.CreatorID != creatorID {
			return "", domain.ErrNotActivityCreator
		}
		if a.IsTerminal() {
			return "", domain.ErrActivityTerminal
		}
		if a.HasStarted(now) {
			return "", domain.ErrActivityStarted
		}
		a.Status = domain.ActivityStatusCancelled
		return domain.EventActivityCancelled, nil
	})
	if err != nil {
		logger.ExitMethodWithError("activityService.CancelActivity", err, "activityID", id)
		return nil, err
	}

	logger.ExitMethod("activityService.CancelActivity", "activityID", id)
	return a, nil
}

// DeleteActivity soft-deletes: the row is kept, cancelled and hidden.
func (s *activityService) DeleteActivity(ctx context.Context, creatorID, id int32) error {
	logger.EnterMethod("activityService.DeleteActivity", "activityID", id, "creatorID", creatorID)

	_, err := s.apply(ctx, "delete_activity", id, func(a *domain.Activity, now time.Time) (domain.EventKind, error) {
		if a.CreatorID != creatorID {
			return "", domain.ErrNotActivityCreator
		}
		if a.Status != domain.ActivityStatusCancelled {
			if err := s.rules.EvaluateDelete(a, now).Err(domain.ErrDeleteWindowClosed); err != nil {
				return "", err
			}
		}
		a.Status = domain.ActivityStatusCancelled
		a.DeletedAt = &now
		return domain.EventActivityCancelled, nil
	})
	if err != nil {
		logger.ExitMethodWithError("activityService.DeleteActivity", err, "activityID", id)
		return err
	}

	logger.ExitMethod("activityService.DeleteActivity", "activityID", id)
	return nil
}

func (s *activityService) LockStatus(ctx context.Context, id int32) (*domain.LockStatus, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.opts.Clock()
	return &domain.LockStatus{
		ActivityID: a.ID,
		Modify:     s.rules.Evaluate(a, now),
		Delete:     s.rules.EvaluateDelete(a, now),
	}, nil
}

func (s *activityService) ListMemberships(ctx context.Context, participantID int32) ([]domain.MembershipEntry, error) {
	return s.memberships.ListByParticipant(ctx, participantID)
}

func (s *activityService) AdvanceLifecycle(ctx context.Context, now time.Time) (int, error) {
	logger.EnterMethod("activityService.AdvanceLifecycle", "now", now)

	due, err := s.activities.ListDueForTransition(ctx, now.Add(s.rules.ModifyWindow))
	if err != nil {
		logger.ExitMethodWithError("activityService.AdvanceLifecycle", err)
		return 0, err
	}

	changed := 0
	var errs []error
	for i := range due {
		if s.rules.LifecycleStatus(&due[i], now) == due[i].Status {
			continue
		}
		var moved bool
		_, err := s.apply(ctx, "advance_lifecycle", due[i].ID, func(a *domain.Activity, _ time.Time) (domain.EventKind, error) {
			target := s.rules.LifecycleStatus(a, now)
			if target == a.Status {
				return "", nil
			}
			a.Status = target
			moved = true
			return domain.EventStatusChanged, nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("activity %d: %w", due[i].ID, err))
			continue
		}
		if moved {
			changed++
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		logger.ExitMethodWithError("activityService.AdvanceLifecycle", err, "changed", changed)
		return changed, err
	}
	logger.ExitMethod("activityService.AdvanceLifecycle", "candidates", len(due), "changed", changed)
	return changed, nil
}

func (s *activityService) ArchiveFinished(ctx context.Context, now time.Time) (int, error) {
	logger.EnterMethod("activityService.ArchiveFinished", "now", now)

	finished, err := s.activities.ListArchivable(ctx, now.Add(-s.opts.ArchiveGrace))
	if err != nil {
		logger.ExitMethodWithError("activityService.ArchiveFinished", err)
		return 0, err
	}

	archived := 0
	var errs []error
	for _, f := range finished {
		_, err := s.apply(ctx, "archive_activity", f.ID, func(a *domain.Activity, _ time.Time) (domain.EventKind, error) {
			if a.ArchivedAt != nil {
				return "", nil
			}
			if !a.IsTerminal() {
				a.Status = domain.ActivityStatusCompleted
			}
			a.ArchivedAt = &now
			return domain.EventStatusChanged, nil
		}, withDeleted())
		if err != nil {
			errs = append(errs, fmt.Errorf("activity %d: %w", f.ID, err))
			continue
		}
		archived++
	}

	err = errors.Join(errs...)
	if err != nil {
		logger.ExitMethodWithError("activityService.ArchiveFinished", err, "archived", archived)
		return archived, err
	}
	logger.ExitMethod("activityService.ArchiveFinished", "candidates", len(finished), "archived", archived)
	return archived, nil
}

type editFunc func(a *domain.Activity, now time.Time) (domain.EventKind, error)

type applyConfig struct {
	includeDeleted bool
}

type applyOption func(*applyConfig)

// withDeleted lets maintenance jobs touch soft-deleted rows.
func withDeleted() applyOption {
	return func(c *applyConfig) { c.includeDeleted = true }
}

// apply runs fn under the activity gate and writes the result with an
// optimistic version check. An empty event kind means nothing changed.
func (s *activityService) apply(ctx context.Context, op string, id int32, fn editFunc, options ...applyOption) (*domain.Activity, error) {
	var cfg applyConfig
	for _, o := range options {
		o(&cfg)
	}

	release, err := s.gate.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxCommitAttempts; attempt++ {
		a, err := s.activities.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if a.DeletedAt != nil && !cfg.includeDeleted {
			return nil, domain.ErrActivityNotFound
		}
		prev := a.Status
		now := s.opts.Clock()
		kind, err := fn(a, now)
		if err != nil {
			return nil, err
		}
		if kind == "" {
			return a, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err = s.activities.Update(ctx, a, a.Version)
		if err == nil {
			s.hub.Publish(id, domain.NewActivityEvent(a, kind, 0, nil, now))
			if a.Status != prev {
				metrics.LifecycleTransitions.WithLabelValues(string(a.Status)).Inc()
			}
			logger.Transition(id, op, a.Version, "status", a.Status)
			return a, nil
		}
		if domain.KindOf(err) != domain.KindConflict {
			return nil, err
		}
		metrics.CoordinatorCommitConflicts.WithLabelValues(op).Inc()
		lastErr = err
	}
	return nil, domain.Conflict(fmt.Sprintf("%s: gave up after %d attempts", op, s.opts.MaxCommitAttempts), lastErr)
}

func (s *activityService) load(ctx context.Context, id int32) (*domain.Activity, error) {
	a, err := s.activities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DeletedAt != nil {
		return nil, domain.ErrActivityNotFound
	}
	return a, nil
}
