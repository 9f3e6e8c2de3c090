package service

import (
	"context"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/notifier"
)

// Frame is one item of a watch stream: either a full snapshot or one event.
type Frame struct {
	Snapshot *domain.RosterSnapshot
	Event    *domain.ActivityEvent
}

// Watch is a live, ordered view of one activity. It starts with a snapshot and
// then yields events newer than that snapshot. After a subscriber overflow it
// yields a fresh snapshot instead of the lost events.
type Watch struct {
	sub      *notifier.Subscription
	load     func(ctx context.Context, activityID int32) (*domain.RosterSnapshot, error)
	snapshot *domain.RosterSnapshot
	sent     bool
}

// Snapshot returns the state the stream is currently based on.
func (w *Watch) Snapshot() *domain.RosterSnapshot {
	return w.snapshot
}

// Next blocks for the next frame. The first call returns the initial snapshot.
func (w *Watch) Next(ctx context.Context) (Frame, error) {
	if !w.sent {
		w.sent = true
		return Frame{Snapshot: w.snapshot}, nil
	}
	for {
		u, err := w.sub.Next(ctx)
		if err != nil {
			return Frame{}, err
		}
		if u.Resync {
			if err := w.refresh(ctx); err != nil {
				return Frame{}, err
			}
			return Frame{Snapshot: w.snapshot}, nil
		}
		// Already reflected in the snapshot.
		if u.Event.Version <= w.snapshot.State.Version {
			continue
		}
		ev := u.Event
		return Frame{Event: &ev}, nil
	}
}

func (w *Watch) Close() {
	w.sub.Close()
}

func (w *Watch) refresh(ctx context.Context) error {
	snap, err := w.load(ctx, w.sub.ActivityID())
	if err != nil {
		return err
	}
	w.snapshot = snap
	return nil
}
