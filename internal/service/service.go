package service

import (
	"context"
	"time"

	"pickup-backend/internal/domain"
)

// Clock returns the current instant. Services never read the wall clock directly.
type Clock func() time.Time

// Coordinator is the only writer of activity counters and membership entries.
type Coordinator interface {
	Join(ctx context.Context, activityID, participantID int32) (*domain.JoinOutcome, error)
	Leave(ctx context.Context, activityID, participantID int32) (*domain.LeaveOutcome, error)
	Remove(ctx context.Context, activityID, creatorID, participantID int32) (*domain.LeaveOutcome, error)
	Demote(ctx context.Context, activityID, creatorID, participantID int32) (*domain.LeaveOutcome, error)
	UpdateCapacity(ctx context.Context, activityID, creatorID, capacityMin, capacityMax int32) (*domain.CapacityOutcome, error)
	Roster(ctx context.Context, activityID int32) (*domain.RosterSnapshot, error)
	State(ctx context.Context, activityID int32) (domain.ActivityState, error)
	Watch(ctx context.Context, activityID int32) (*Watch, error)
}

type ActivityService interface {
	CreateActivity(ctx context.Context, creatorID int32, a *domain.Activity) (*domain.Activity, error)
	GetActivity(ctx context.Context, id int32) (*domain.Activity, error)
	UpdateActivity(ctx context.Context, creatorID, id int32, patch domain.ActivityPatch) (*domain.Activity, error)
	CancelActivity(ctx context.Context, creatorID, id int32) (*domain.Activity, error)
	DeleteActivity(ctx context.Context, creatorID, id int32) error
	LockStatus(ctx context.Context, id int32) (*domain.LockStatus, error)
	ListMemberships(ctx context.Context, participantID int32) ([]domain.MembershipEntry, error)
	// AdvanceLifecycle moves every due activity to the status it should carry
	// at now and returns how many changed.
	AdvanceLifecycle(ctx context.Context, now time.Time) (int, error)
	// ArchiveFinished archives activities that ended more than the grace period ago.
	ArchiveFinished(ctx context.Context, now time.Time) (int, error)
}

type DiscoveryService interface {
	Discover(ctx context.Context, origin domain.Location, filters domain.DiscoveryFilters) ([]domain.DiscoveryResult, error)
}
