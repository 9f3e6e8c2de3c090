package repository

import (
	"context"
	"time"

	"pickup-backend/internal/domain"
)

// DiscoveryQuery selects open activities inside a bounding box.
type DiscoveryQuery struct {
	Bounds domain.Bounds
	Sport  string
	Now    time.Time
}

type ActivityRepository interface {
	// Create assigns ID and sets Version to 1.
	Create(ctx context.Context, a *domain.Activity) error
	GetByID(ctx context.Context, id int32) (*domain.Activity, error)
	// Update writes schedule, venue, status and lifecycle timestamps. It fails
	// with ErrVersionConflict unless the stored version equals expectedVersion,
	// and on success sets a.Version to expectedVersion+1. Counters and capacity
	// are owned by RosterRepository.CommitRoster.
	Update(ctx context.Context, a *domain.Activity, expectedVersion int64) error
	ListDiscoverable(ctx context.Context, q DiscoveryQuery) ([]domain.Activity, error)
	// ListDueForTransition returns non-terminal activities starting at or before horizon.
	ListDueForTransition(ctx context.Context, horizon time.Time) ([]domain.Activity, error)
	// ListArchivable returns unarchived activities that ended at or before cutoff.
	ListArchivable(ctx context.Context, cutoff time.Time) ([]domain.Activity, error)
}

type RosterRepository interface {
	// LoadRoster returns the activity with its confirmed and waitlisted entries.
	LoadRoster(ctx context.Context, activityID int32) (*domain.Roster, error)
	// CommitRoster applies ch atomically: all of it or none of it becomes visible.
	CommitRoster(ctx context.Context, ch *domain.RosterChange) error
}

type MembershipRepository interface {
	// ListByActivity returns every entry of the activity, history included, oldest first.
	ListByActivity(ctx context.Context, activityID int32) ([]domain.MembershipEntry, error)
	ListByParticipant(ctx context.Context, participantID int32) ([]domain.MembershipEntry, error)
}

// Store bundles the repositories a backend provides.
type Store interface {
	ActivityRepository
	RosterRepository
	MembershipRepository
	Close() error
}
