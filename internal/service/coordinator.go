package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/metrics"
	"pickup-backend/internal/notifier"
	"pickup-backend/internal/policy"
	"pickup-backend/internal/repository"
)

const (
	DefaultMaxCommitAttempts      = 3
	DefaultDurationMinutes  int32 = 90
	DefaultArchiveGrace           = 24 * time.Hour
)

// Options are the tunables shared by the coordinator and the activity flow.
type Options struct {
	MaxCommitAttempts      int
	Clock                  Clock
	DefaultDurationMinutes int32
	ArchiveGrace           time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxCommitAttempts <= 0 {
		o.MaxCommitAttempts = DefaultMaxCommitAttempts
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.DefaultDurationMinutes <= 0 {
		o.DefaultDurationMinutes = DefaultDurationMinutes
	}
	if o.ArchiveGrace <= 0 {
		o.ArchiveGrace = DefaultArchiveGrace
	}
	return o
}

type coordinator struct {
	rosters repository.RosterRepository
	gate    *ActivityGate
	hub     *notifier.Hub
	rules   policy.LockPolicy
	opts    Options
}

func NewCoordinator(
	rosters repository.RosterRepository,
	gate *ActivityGate,
	hub *notifier.Hub,
	rules policy.LockPolicy,
	opts Options,
) Coordinator {
	return &coordinator{
		rosters: rosters,
		gate:    gate,
		hub:     hub,
		rules:   rules,
		opts:    opts.withDefaults(),
	}
}

func (c *coordinator) Join(ctx context.Context, activityID, participantID int32) (*domain.JoinOutcome, error) {
	logger.EnterMethod("coordinator.Join", "activityID", activityID, "participantID", participantID)

	ch, err := c.mutate(ctx, "join", activityID, func(r *domain.Roster, now time.Time) (*domain.RosterChange, error) {
		return r.Join(participantID, now)
	})
	if err != nil {
		record("join", "", err)
		logger.ExitMethodWithError("coordinator.Join", err, "activityID", activityID, "participantID", participantID)
		return nil, err
	}

	entry := ch.Inserted[0]
	out := &domain.JoinOutcome{
		Entry:    entry,
		Status:   entry.State,
		Position: entry.WaitlistPosition(),
		State:    ch.Activity.State(),
	}
	record("join", string(out.Status), nil)
	logger.ExitMethod("coordinator.Join", "activityID", activityID, "participantID", participantID,
		"status", out.Status, "position", out.Position)
	return out, nil
}

func (c *coordinator) Leave(ctx context.Context, activityID, participantID int32) (*domain.LeaveOutcome, error) {
	logger.EnterMethod("coordinator.Leave", "activityID", activityID, "participantID", participantID)

	ch, err := c.mutate(ctx, "leave", activityID, func(r *domain.Roster, now time.Time) (*domain.RosterChange, error) {
		return r.Leave(participantID, now, c.rules)
	})
	if err != nil {
		record("leave", "", err)
		logger.ExitMethodWithError("coordinator.Leave", err, "activityID", activityID, "participantID", participantID)
		return nil, err
	}

	out := leaveOutcome(ch, participantID)
	record("leave", "ok", nil)
	logger.ExitMethod("coordinator.Leave", "activityID", activityID, "participantID", participantID, "promoted", len(out.Promoted))
	return out, nil
}

func (c *coordinator) Remove(ctx context.Context, activityID, creatorID, participantID int32) (*domain.LeaveOutcome, error) {
	logger.EnterMethod("coordinator.Remove", "activityID", activityID, "creatorID", creatorID, "participantID", participantID)

	ch, err := c.mutate(ctx, "remove", activityID, func(r *domain.Roster, now time.Time) (*domain.RosterChange, error) {
		return r.Remove(creatorID, participantID, now)
	})
	if err != nil {
		record("remove", "", err)
		logger.ExitMethodWithError("coordinator.Remove", err, "activityID", activityID, "participantID", participantID)
		return nil, err
	}

	out := leaveOutcome(ch, participantID)
	record("remove", "ok", nil)
	logger.ExitMethod("coordinator.Remove", "activityID", activityID, "participantID", participantID, "promoted", len(out.Promoted))
	return out, nil
}

func (c *coordinator) Demote(ctx context.Context, activityID, creatorID, participantID int32) (*domain.LeaveOutcome, error) {
	logger.EnterMethod("coordinator.Demote", "activityID", activityID, "creatorID", creatorID, "participantID", participantID)

	ch, err := c.mutate(ctx, "demote", activityID, func(r *domain.Roster, now time.Time) (*domain.RosterChange, error) {
		return r.Demote(creatorID, participantID, now)
	})
	if err != nil {
		record("demote", "", err)
		logger.ExitMethodWithError("coordinator.Demote", err, "activityID", activityID, "participantID", participantID)
		return nil, err
	}

	out := leaveOutcome(ch, participantID)
	record("demote", "ok", nil)
	logger.ExitMethod("coordinator.Demote", "activityID", activityID, "participantID", participantID, "position", out.Entry.WaitlistPosition())
	return out, nil
}

func (c *coordinator) UpdateCapacity(ctx context.Context, activityID, creatorID, capacityMin, capacityMax int32) (*domain.CapacityOutcome, error) {
	logger.EnterMethod("coordinator.UpdateCapacity", "activityID", activityID, "min", capacityMin, "max", capacityMax)

	ch, err := c.mutate(ctx, "update_capacity", activityID, func(r *domain.Roster, now time.Time) (*domain.RosterChange, error) {
		return r.Resize(creatorID, capacityMin, capacityMax, now, c.rules)
	})
	if err != nil {
		record("update_capacity", "", err)
		logger.ExitMethodWithError("coordinator.UpdateCapacity", err, "activityID", activityID)
		return nil, err
	}

	out := &domain.CapacityOutcome{Promoted: ch.Promoted(), State: ch.Activity.State()}
	record("update_capacity", "ok", nil)
	logger.ExitMethod("coordinator.UpdateCapacity", "activityID", activityID, "promoted", len(out.Promoted))
	return out, nil
}

func (c *coordinator) Roster(ctx context.Context, activityID int32) (*domain.RosterSnapshot, error) {
	r, err := c.rosters.LoadRoster(ctx, activityID)
	if err != nil {
		return nil, err
	}
	snap := r.Snapshot()
	return &snap, nil
}

func (c *coordinator) State(ctx context.Context, activityID int32) (domain.ActivityState, error) {
	r, err := c.rosters.LoadRoster(ctx, activityID)
	if err != nil {
		return domain.ActivityState{}, err
	}
	return r.Activity.State(), nil
}

// Watch subscribes before reading the snapshot, so every commit after the
// snapshot reaches the stream.
func (c *coordinator) Watch(ctx context.Context, activityID int32) (*Watch, error) {
	sub, err := c.hub.Subscribe(activityID)
	if err != nil {
		return nil, err
	}
	w := &Watch{sub: sub, load: c.Roster}
	if err := w.refresh(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return w, nil
}

type transition func(r *domain.Roster, now time.Time) (*domain.RosterChange, error)

// mutate runs one serialized read-decide-commit cycle for activityID. Lost
// optimistic writes are retried from a fresh read; policy rejections are not.
// Events are published while the gate is held so their order matches commits.
func (c *coordinator) mutate(ctx context.Context, op string, activityID int32, fn transition) (*domain.RosterChange, error) {
	release, err := c.gate.Acquire(ctx, activityID)
	if err != nil {
		return nil, err
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxCommitAttempts; attempt++ {
		roster, err := c.rosters.LoadRoster(ctx, activityID)
		if err != nil {
			return nil, err
		}
		ch, err := fn(roster, c.opts.Clock())
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err = c.rosters.CommitRoster(ctx, ch)
		if err == nil {
			c.hub.Publish(activityID, ch.Events...)
			logger.Transition(activityID, op, ch.Activity.Version,
				"confirmed", ch.Activity.ConfirmedCount, "waitlisted", ch.Activity.WaitlistCount, "events", len(ch.Events))
			return ch, nil
		}
		if domain.KindOf(err) != domain.KindConflict {
			return nil, err
		}
		metrics.CoordinatorCommitConflicts.WithLabelValues(op).Inc()
		logger.WithActivity(activityID).Warn("Commit conflict, retrying", "operation", op, "attempt", attempt, "error", err)
		lastErr = err
	}
	return nil, domain.Conflict(fmt.Sprintf("%s: gave up after %d attempts", op, c.opts.MaxCommitAttempts), lastErr)
}

func leaveOutcome(ch *domain.RosterChange, participantID int32) *domain.LeaveOutcome {
	entry, _ := ch.Entry(participantID)
	return &domain.LeaveOutcome{
		Entry:    entry,
		Promoted: ch.Promoted(),
		State:    ch.Activity.State(),
	}
}

// record counts an outcome. Rejections are labelled with their reason code.
func record(op, outcome string, err error) {
	if err != nil {
		switch reason := domain.ReasonOf(err); {
		case reason != "":
			outcome = strings.ToLower(string(reason))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			outcome = "cancelled"
		default:
			outcome = "error"
		}
	}
	metrics.CoordinatorOutcomes.WithLabelValues(op, outcome).Inc()
}
